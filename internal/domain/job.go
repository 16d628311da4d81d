package domain

import "fmt"

// Job priorities on the messages lane. The lane is declared with
// x-max-priority so ad-hoc sends jump ahead of queued bulk traffic.
const (
	PriorityBulk  uint8 = 1
	PriorityAdhoc uint8 = 9
)

// ContractJob asks the contract dispatcher to fan one contract out into
// per-recipient message jobs.
type ContractJob struct {
	JobID      string `json:"jobId"`
	ContractID int64  `json:"contractId"`
}

func (j ContractJob) Validate() error {
	if j.ContractID <= 0 {
		return fmt.Errorf("contract job missing contractId")
	}
	return nil
}

// MessageJob carries everything the message dispatcher needs so a job is
// self-contained on the wire. Payloads are validated at dequeue time;
// a malformed job is dropped, never retried.
type MessageJob struct {
	JobID       string `json:"jobId"`
	ContractID  int64  `json:"contractId"`
	RecipientID int64  `json:"recipientId"`
	ChannelID   string `json:"channelId"`
	Address     string `json:"address"`
	Message     string `json:"message"`
	Priority    uint8  `json:"priority"`
}

func (j MessageJob) Validate() error {
	switch {
	case j.ContractID <= 0:
		return fmt.Errorf("message job missing contractId")
	case j.RecipientID <= 0:
		return fmt.Errorf("message job missing recipientId")
	case j.ChannelID == "":
		return fmt.Errorf("message job missing channelId")
	case j.Address == "":
		return fmt.Errorf("message job missing address")
	case j.Message == "":
		return fmt.Errorf("message job missing message body")
	}
	return nil
}

// QueueStatus is the per-lane snapshot returned by GET /queues/status.
type QueueStatus struct {
	Lane       string      `json:"lane"`
	Waiting    int         `json:"waiting"`
	Active     int         `json:"active"`
	Completed  int64       `json:"completed"`
	Failed     int64       `json:"failed"`
	ActiveJobs []ActiveJob `json:"activeJobs"`
}

// ActiveJob is a sample entry of what a lane's workers are holding right now.
type ActiveJob struct {
	JobID      string `json:"jobId"`
	ContractID int64  `json:"contractId,omitempty"`
	ChannelID  string `json:"channelId,omitempty"`
}
