package hostdb

// ChannelModel is the persisted row backing hostapi.Channel.
type ChannelModel struct {
	UID       uint64 `gorm:"primaryKey"`
	Name      string
	CAIDsCSV  string // comma-separated CA system ids; empty means free-to-air
	Encrypted bool
}

func (ChannelModel) TableName() string { return "channels" }

// TimerModel is the persisted row backing hostapi.Timer.
type TimerModel struct {
	ID        int `gorm:"primaryKey;autoIncrement"`
	ChannelUID uint64
	Active    bool
}

func (TimerModel) TableName() string { return "timers" }

// RecordingModel is the persisted row backing hostapi.Recording.
type RecordingModel struct {
	ID        int `gorm:"primaryKey;autoIncrement"`
	ChannelUID uint64
	Title     string
}

func (RecordingModel) TableName() string { return "recordings" }

// StreamModel is one elementary-stream row of a channel's known PSI layout,
// used to derive a tsdemux.StreamBundle on a ChannelCache cold miss (before
// any bytes have actually been demuxed). CodecType/Class store the
// tsdemux enum's integer value.
type StreamModel struct {
	ID         int `gorm:"primaryKey;autoIncrement"`
	ChannelUID uint64 `gorm:"index"`
	PID        int
	CodecType  int
	Language   string
}

func (StreamModel) TableName() string { return "channel_streams" }
