package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42                                    // 42
	timestampPos          = 64 - timestampLength                  // 22
	workerLength    int64 = 10                                    // 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12

	maxWorkerValue    = int64(1)<<workerLength - 1
	maxIncrementValue = int64(1)<<incrementLength - 1
)

// Generator hands out unique, time ordered ids for one worker.
type Generator struct {
	mutex         sync.Mutex
	workerID      int64
	lastIncrement int64
	lastTimestamp int64
	now           func() time.Time
}

func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerValue {
		return nil, fmt.Errorf("worker ID value must be between 0 and [%d]", maxWorkerValue)
	}
	return &Generator{workerID: workerID, now: time.Now}, nil
}

func (g *Generator) Generate() (int64, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	timestamp := g.now().UnixMilli()
	if timestamp <= g.lastTimestamp {
		// clock stood still or went backwards, keep counting on the last millisecond
		timestamp = g.lastTimestamp
		g.lastIncrement += 1
		if g.lastIncrement > maxIncrementValue {
			return 0, fmt.Errorf("increment overflow after increment reached %d", g.lastIncrement)
		}
	} else {
		g.lastIncrement = 0
		g.lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | g.workerID<<workerPos | g.lastIncrement, nil
}

// NewID returns a fresh id in the decimal string form used on the wire.
func (g *Generator) NewID() (string, error) {
	id, err := g.Generate()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func Extract(snowflakeId int64) Snowflake {
	return Snowflake{
		Timestamp: snowflakeId >> timestampPos,
		WorkerID:  (snowflakeId >> workerPos) & maxWorkerValue,
		Increment: snowflakeId & maxIncrementValue,
	}
}

func ExtractTimestamp(snowflakeId int64) time.Time {
	return time.UnixMilli(snowflakeId >> timestampPos)
}
