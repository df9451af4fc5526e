package api

import (
	"database/sql"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"transferdesk/internal/config"
)

// SettingsStore 配置存储
type SettingsStore interface {
	ListConfigs(configType string) (map[string]string, error)
	GetConfig(configType, key string) (string, error)
	UpdateConfig(configType, key, value string) error
}

var _ SettingsStore = (*config.DatabaseConfig)(nil)

// SettingsManager 数据库配置接口，修改在下次启动时生效
type SettingsManager struct {
	store  SettingsStore
	logger *logrus.Logger
}

// NewSettingsManager 创建配置管理器
func NewSettingsManager(store SettingsStore, logger *logrus.Logger) *SettingsManager {
	return &SettingsManager{
		store:  store,
		logger: logger,
	}
}

// GetConfig 获取配置，未指定 key 时返回该类全部配置
func (sm *SettingsManager) GetConfig(c *gin.Context) {
	configType := c.Param("type")
	key := c.Query("key")

	if key == "" {
		configs, err := sm.store.ListConfigs(configType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "获取配置失败",
				"message": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"config_type": configType,
			"configs":     configs,
		})
		return
	}

	value, err := sm.store.GetConfig(configType, key)
	if err != nil {
		status := http.StatusInternalServerError
		if stderrors.Is(err, sql.ErrNoRows) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error":   "配置不存在",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"config_type": configType,
		"key":         key,
		"value":       value,
	})
}

// UpdateConfig 更新配置
func (sm *SettingsManager) UpdateConfig(c *gin.Context) {
	configType := c.Param("type")

	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	if err := config.CheckSetting(configType, req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "配置值无效",
			"message": err.Error(),
		})
		return
	}

	if err := sm.store.UpdateConfig(configType, req.Key, req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "更新配置失败",
			"message": err.Error(),
		})
		return
	}

	sm.logger.WithFields(logrus.Fields{"type": configType, "key": req.Key}).Info("配置已更新，重启后生效")
	c.JSON(http.StatusOK, gin.H{
		"message": "配置更新成功",
		"config": gin.H{
			"type":  configType,
			"key":   req.Key,
			"value": req.Value,
		},
	})
}
