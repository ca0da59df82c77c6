package sqlitexporter

import (
	"sync"
	"time"

	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var batchCacheSize = 200

// SqliteExporter mirrors the decoded stream into an sqlite database for
// ad-hoc SQL queries over a trace. Comment and pragma lines are not stored.
type SqliteExporter struct {
	name      string
	config    *Config
	waitGroup sync.WaitGroup
	quit      chan struct{}
	events    chan *EVENTS
	nameRows  chan *NAMES
	DB        *gorm.DB
}

func NewSqliteExporter(cfg interface{}) *SqliteExporter {
	config, _ := cfg.(*Config)
	var err error
	server := &SqliteExporter{
		name:     "sqlite_exporter",
		config:   config,
		quit:     make(chan struct{}),
		events:   make(chan *EVENTS, 5000),
		nameRows: make(chan *NAMES, 1000),
	}
	server.DB, err = gorm.Open(sqlite.Open(server.config.Path), &gorm.Config{})
	if err != nil {
		log.Loger.Error("sqlite open failed:%v", err)
		return nil
	}
	server.waitGroup.Add(1)

	server.DB.AutoMigrate(&EVENTS{})
	server.DB.AutoMigrate(&NAMES{})

	go server.Run()

	return server
}

func (s *SqliteExporter) Consume(ev *model.DecodedEvent) error {
	s.events <- &EVENTS{
		Nsec10: ev.Nsec10,
		Dur:    ev.Duration,
		Event:  ev.Event,
		Cpu:    uint32(ev.Cpu),
		Pid:    uint32(ev.Pid),
		Rpc:    uint32(ev.Rpc),
		Arg:    uint32(ev.Arg),
		Retval: uint32(ev.Retval),
		Ipc:    ev.Ipc,
		Name:   ev.Name,
	}
	return nil
}

func (s *SqliteExporter) ConsumeName(nd *model.NameDef) error {
	s.nameRows <- &NAMES{
		Nsec10: nd.Nsec10,
		Event:  nd.Event,
		Arg:    uint32(nd.ArgAll),
		Name:   nd.Name,
	}
	return nil
}

func (s *SqliteExporter) Comment(line string) error { return nil }

func (s *SqliteExporter) Pragma(line string) error { return nil }

func (s *SqliteExporter) Shutdown() error {
	// notify Run goroutine to drain and quit, then wait for it
	close(s.quit)
	s.waitGroup.Wait()
	db, err := s.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *SqliteExporter) flushEvents(batch []EVENTS) {
	if len(batch) == 0 {
		return
	}
	result := s.DB.Table("EVENTS").CreateInBatches(batch, batchCacheSize)
	if result.Error != nil {
		log.Loger.Error("table:EVENTS, sqlite flush failed:%v", result.Error)
	}
}

func (s *SqliteExporter) flushNames(batch []NAMES) {
	if len(batch) == 0 {
		return
	}
	result := s.DB.Table("NAMES").CreateInBatches(batch, batchCacheSize)
	if result.Error != nil {
		log.Loger.Error("table:NAMES, sqlite flush failed:%v", result.Error)
	}
}

func (s *SqliteExporter) Run() {
	defer s.waitGroup.Done()

	ticker := time.NewTicker(s.config.BatchWait)
	defer ticker.Stop()

	var events []EVENTS
	var nameRows []NAMES
	for {
		select {
		case ev := <-s.events:
			events = append(events, *ev)
			if len(events) >= s.config.BatchEntriesNum {
				s.flushEvents(events)
				events = nil
			}
		case nd := <-s.nameRows:
			nameRows = append(nameRows, *nd)
			if len(nameRows) >= s.config.BatchEntriesNum {
				s.flushNames(nameRows)
				nameRows = nil
			}
		case <-ticker.C:
			s.flushEvents(events)
			s.flushNames(nameRows)
			events = nil
			nameRows = nil
		case <-s.quit:
			// drain whatever is still queued
			for {
				select {
				case ev := <-s.events:
					events = append(events, *ev)
				case nd := <-s.nameRows:
					nameRows = append(nameRows, *nd)
				default:
					s.flushEvents(events)
					s.flushNames(nameRows)
					return
				}
			}
		}
	}
}
