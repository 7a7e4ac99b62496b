package replay

// Status 回放状态
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

func (s Status) String() string {
	return string(s)
}

// State 是回放引擎对外暴露的状态快照.
// 任意时刻满足 StartTime <= CurrentTime <= EndTime.
type State struct {
	Status      Status  `json:"status"`
	CurrentTime float64 `json:"currentTime"`
	Speed       float64 `json:"speed"`
	StartTime   float64 `json:"startTime"`
	EndTime     float64 `json:"endTime"`
}
