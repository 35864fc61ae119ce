package jobs

// KeepAwake は処理中に端末をスリープさせないための外部機能です。
// Acquire が返す関数で解放します。
type KeepAwake interface {
	Acquire() (release func())
}

type nopKeepAwake struct{}

func (nopKeepAwake) Acquire() func() { return func() {} }
