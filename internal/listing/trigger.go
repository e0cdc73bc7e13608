package listing

import "sync"

// Trigger は追跡中の要素が表示されたときに1回だけ発火する近接トリガー。
// 追跡対象（一覧の末尾の要素）が変わると再度発火可能になる。
type Trigger struct {
	mu        sync.Mutex
	fire      func()
	tracked   string
	fired     bool
	cancelled bool
}

// NewTrigger はTriggerを生成する。
func NewTrigger(fire func()) *Trigger {
	return &Trigger{fire: fire}
}

// Track は追跡する要素を設定する。要素が変わった場合のみ発火状態をリセットする。
func (t *Trigger) Track(elementID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elementID != t.tracked {
		t.tracked = elementID
		t.fired = false
	}
}

// Visible は要素が表示されたことを通知する。発火した場合はtrueを返す。
func (t *Trigger) Visible(elementID string) bool {
	t.mu.Lock()
	if t.cancelled || t.tracked == "" || elementID != t.tracked || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()

	t.fire()
	return true
}

// Hidden は要素が画面外に出たことを通知する。次に表示されたときに再び発火する。
func (t *Trigger) Hidden(elementID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elementID == t.tracked {
		t.fired = false
	}
}

// Cancel は購読を解除する。以降は発火しない。
func (t *Trigger) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}
