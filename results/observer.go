package results

import "time"

// RunScore is the progress event emitted after every Add: the scores of one
// (run, dataset) addition plus the running count.
type RunScore struct {
	ExperimentID string             `json:"experiment_id"`
	Run          int                `json:"run"`
	Dataset      string             `json:"dataset"`
	Scores       map[string]float64 `json:"scores"`
	Count        int                `json:"count"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Observer receives progress events from a store. Implementations are
// called synchronously from Add and must return quickly.
type Observer interface {
	RunScored(ev RunScore)
}

// CheckpointObserver is optionally implemented by observers that also want
// to know when a checkpoint file lands on disk.
type CheckpointObserver interface {
	CheckpointWritten(path string)
}

// multiObserver fans one event out to several observers.
type multiObserver []Observer

// MultiObserver combines observers into one; nil entries are dropped.
func MultiObserver(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	if len(list) == 0 {
		return nil
	}
	return list
}

func (m multiObserver) RunScored(ev RunScore) {
	for _, o := range m {
		o.RunScored(ev)
	}
}

func (m multiObserver) CheckpointWritten(path string) {
	for _, o := range m {
		if co, ok := o.(CheckpointObserver); ok {
			co.CheckpointWritten(path)
		}
	}
}
