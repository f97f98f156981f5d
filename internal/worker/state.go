package worker

// State 对应 worker 生命周期中的阶段。
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	// StateRedundant 表示安装失败或已被新版本替换，不再处理任何事件。
	StateRedundant State = "redundant"
)

func (s State) String() string {
	return string(s)
}
