package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// StderrTailLines 失败时保留的 stderr 行数
const StderrTailLines = 20

// Command 外部命令
type Command struct {
	Path string
	Args []string
	Env  []string // 追加到当前进程环境变量之后
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result 命令执行结果
type Result struct {
	ExitCode   int
	StderrTail string
}

// Runner 运行外部命令直到结束
// 命令无法启动时返回错误，非0退出只体现在 Result.ExitCode 中
type Runner interface {
	Run(cmd Command) (Result, error)
}

// Executor 命令执行器
type Executor struct {
	log    logr.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewExecutor 创建执行器，子进程输出透传到 stdout / stderr
func NewExecutor(log logr.Logger, stdout, stderr io.Writer) *Executor {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Executor{log: log.WithName("executor"), stdout: stdout, stderr: stderr}
}

// Run 运行命令并等待结束，不支持中途取消
func (e *Executor) Run(c Command) (Result, error) {
	tail := newTailWriter(StderrTailLines)

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = e.stdout
	cmd.Stderr = io.MultiWriter(e.stderr, tail)

	e.log.V(1).Info("running command", "command", c.String())

	err := cmd.Run()
	if err == nil {
		return Result{}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), StderrTail: tail.String()}, nil
	}
	return Result{}, fmt.Errorf("启动 %s 失败: %w", c.Path, err)
}

// RunPostCommand 执行后置命令
func (e *Executor) RunPostCommand(command string, vars map[string]string) error {
	if command == "" {
		return nil
	}

	// 替换命令中的变量
	for key, value := range vars {
		command = strings.ReplaceAll(command, "${"+key+"}", value)
	}

	e.log.Info("running post command", "command", command)

	cmd := exec.Command("sh", "-c", command)
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("执行命令失败: %w", err)
	}

	e.log.Info("post command finished")
	return nil
}

// tailWriter 只保留最后 n 行输出
type tailWriter struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial bytes.Buffer
}

func newTailWriter(n int) *tailWriter {
	return &tailWriter{n: n}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			t.push(t.partial.String())
			t.partial.Reset()
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *tailWriter) push(line string) {
	t.lines = append(t.lines, strings.TrimRight(line, "\r"))
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines
	if t.partial.Len() > 0 {
		lines = append(append([]string(nil), lines...), t.partial.String())
		if len(lines) > t.n {
			lines = lines[len(lines)-t.n:]
		}
	}
	return strings.Join(lines, "\n")
}
