package sqlitexporter

import (
	"time"
)

// .tables
// .schema EVENTS
// SELECT * FROM EVENTS;
type EVENTS struct {
	ID       uint64    `gorm:"primaryKey"`
	CreateAt time.Time `gorm:"autoCreateTime"`
	Nsec10   uint64
	Dur      uint64
	Event    uint64
	Cpu      uint32
	Pid      uint32
	Rpc      uint32
	Arg      uint32
	Retval   uint32
	Ipc      uint8
	Name     string `gorm:"size:64"`
}

func (e *EVENTS) TableName() string {
	return "EVENTS"
}

type NAMES struct {
	ID       uint64    `gorm:"primaryKey"`
	CreateAt time.Time `gorm:"autoCreateTime"`
	Nsec10   uint64
	Event    uint64
	Arg      uint32
	Name     string `gorm:"size:64"`
}

func (n *NAMES) TableName() string {
	return "NAMES"
}
