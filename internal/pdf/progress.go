package pdf

import (
	"io"
	"sync/atomic"
)

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

// ProgressCounter は複数の io.Reader から読んだバイト数を合算して進捗を通知します。
// 同じ割合は一度しか通知しません。
type ProgressCounter struct {
	total    int64
	read     atomic.Int64
	last     atomic.Int64
	stage    string
	reporter ProgressReporter
}

// NewProgressCounter は ProgressCounter を作成します。total が 0 以下の場合は Done でのみ通知します。
func NewProgressCounter(total int64, stage string, reporter ProgressReporter) *ProgressCounter {
	c := &ProgressCounter{total: total, stage: stage, reporter: reporter}
	c.last.Store(-1)
	return c
}

// Reader は r から読んだバイト数を数える io.Reader を返します。
func (c *ProgressCounter) Reader(r io.Reader) io.Reader {
	return &countingReader{r: r, counter: c}
}

// Add は n バイト分の進捗を加算します。
func (c *ProgressCounter) Add(n int64) {
	if n <= 0 {
		return
	}
	read := c.read.Add(n)
	if c.total > 0 {
		c.report(int(read * 100 / c.total))
	}
}

// Done は 100% を通知します。
func (c *ProgressCounter) Done() {
	c.report(100)
}

// BytesRead はこれまでに読み込んだバイト数です。
func (c *ProgressCounter) BytesRead() int64 {
	return c.read.Load()
}

func (c *ProgressCounter) report(percent int) {
	if percent > 100 {
		percent = 100
	}
	if c.last.Swap(int64(percent)) == int64(percent) {
		return
	}
	reportProgress(c.reporter, c.stage, percent)
}

type countingReader struct {
	r       io.Reader
	counter *ProgressCounter
}

func (cr *countingReader) Read(b []byte) (int, error) {
	n, err := cr.r.Read(b)
	cr.counter.Add(int64(n))
	return n, err
}
