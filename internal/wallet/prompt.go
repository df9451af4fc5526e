package wallet

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Prompter 未检测到钱包时提示用户安装
type Prompter interface {
	PromptInstall(message string)
}

// LogPrompter 通过日志提示
type LogPrompter struct {
	Logger *logrus.Logger
}

// PromptInstall 实现 Prompter
func (p *LogPrompter) PromptInstall(message string) {
	p.Logger.Warn(message)
}

// WriterPrompter 直接输出到终端
type WriterPrompter struct {
	W io.Writer
}

// PromptInstall 实现 Prompter
func (p *WriterPrompter) PromptInstall(message string) {
	fmt.Fprintln(p.W, message)
}
