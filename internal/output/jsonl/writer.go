// Package jsonl 实现追加式 JSONL 文件写入。
// 用于记录已发出的变更事件，便于离线复盘。每轮轮询只写入少量事件，
// 采用带缓冲的同步写入即可。
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer JSONL 写入器
// 并发安全；Write 只写入缓冲区，Flush/Close 落盘
type Writer struct {
	// path 输出文件路径
	path string

	mu     sync.Mutex
	f      *os.File
	bw     *bufio.Writer
	closed bool
}

// NewWriter 创建 JSONL 写入器
// 目录不存在时自动创建；文件以追加模式打开
// 参数 path: 输出文件路径
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	return &Writer{
		path: path,
		f:    f,
		bw:   bufio.NewWriter(f),
	}, nil
}

// Write 写入一条 JSONL 记录
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer 已关闭")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	return nil
}

// Flush 将缓冲区落盘
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.bw.Flush()
}

// Close 关闭写入器（会先 flush）
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.bw.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
