package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNurturingProcessDue = "nurturing.process_due"

type NurturingProcessDuePayload struct {
	BatchSize int `json:"batchSize"`
}

func NewNurturingProcessDueTask(payload NurturingProcessDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNurturingProcessDue, data), nil
}

func ParseNurturingProcessDuePayload(task *asynq.Task) (NurturingProcessDuePayload, error) {
	var payload NurturingProcessDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NurturingProcessDuePayload{}, err
	}
	return payload, nil
}
