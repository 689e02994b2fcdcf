package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Result 是一次成功翻译的产物：注册包装后的代码与按声明顺序排列的依赖。
type Result struct {
	Code         string
	Dependencies []string
}

// Backend 抽象具体的翻译后端，不同实现共享同一输出形态。
type Backend interface {
	// Name 返回后端标识，用于日志与诊断接口。
	Name() string

	// Translate 将原始源码包装为模块注册格式，并抽取依赖列表。
	// 失败时返回 *CompileError，诊断信息保持后端原文。
	Translate(path string, source []byte) (*Result, error)
}

// CompileError 携带后端原始诊断信息，供响应层原样透出。
type CompileError struct {
	Path       string
	Backend    string
	Diagnostic string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Diagnostic)
}

// ErrNoBackend 表示启动时没有任何可用的翻译后端，属于致命配置错误。
var ErrNoBackend = errors.New("no translation backend available")

// New 按名称构造翻译后端；"auto" 依次尝试 lexer、pattern，全部失败时
// 返回 ErrNoBackend，让宿主在服务任何请求之前快速失败。
func New(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		for _, construct := range defaultOrder {
			backend, err := construct()
			if err == nil {
				return backend, nil
			}
		}
		return nil, ErrNoBackend
	case "lexer":
		return newLexerBackend()
	case "pattern":
		return newPatternBackend()
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNoBackend, name)
	}
}

// defaultOrder 决定 auto 模式下的尝试顺序，lexer 优先。
var defaultOrder = []func() (Backend, error){
	func() (Backend, error) { return newLexerBackend() },
	func() (Backend, error) { return newPatternBackend() },
}
