package ratingflow

// Level は通知の重要度。
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice は利用者に一時的に表示する通知。
type Notice struct {
	Level   Level
	Message string
}

// Notifier は通知の表示先。
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc は関数をNotifierとして扱う。
type NotifierFunc func(Notice)

// Notify はNotifierを実装する。
func (f NotifierFunc) Notify(n Notice) { f(n) }

// NopNotifier は通知を捨てる。
var NopNotifier Notifier = NotifierFunc(func(Notice) {})

func notifyError(n Notifier, err error) {
	n.Notify(Notice{Level: LevelError, Message: messageOf(err)})
}

func notifyInfo(n Notifier, msg string) {
	n.Notify(Notice{Level: LevelInfo, Message: msg})
}
