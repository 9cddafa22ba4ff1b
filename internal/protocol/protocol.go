// Package protocol defines the live-push wire format: one JSON frame per
// published epoch, and the two plain-text inbound commands.
package protocol

import "encoding/json"

// Inbound client commands.
const (
	CmdPause = "pause"
	CmdPlay  = "play"
)

// FrameMsg is one epoch's visualization frame. Grid holds a row-major 2-D
// array of [r, g, b] triples.
type FrameMsg struct {
	RunID           string     `json:"run_id"`
	Epoch           int        `json:"epoch"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	Entropy         float64    `json:"entropy"`
	AvgIters        float64    `json:"avg_iters"`
	FinishedRatio   float64    `json:"finished_ratio"`
	TerminatedRatio float64    `json:"terminated_ratio"`
	Grid            [][][3]int `json:"grid"`
}

func (m FrameMsg) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeFrame(b []byte) (FrameMsg, error) {
	var m FrameMsg
	err := json.Unmarshal(b, &m)
	return m, err
}
