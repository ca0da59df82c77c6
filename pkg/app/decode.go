package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kutrace/rawtoevent/pkg/app/config"
	"github.com/kutrace/rawtoevent/pkg/component/consumer"
	sqlitexporter "github.com/kutrace/rawtoevent/pkg/component/exporter/sqlite"
	textexporter "github.com/kutrace/rawtoevent/pkg/component/exporter/text"
	"github.com/kutrace/rawtoevent/pkg/core"
	"github.com/kutrace/rawtoevent/pkg/core/model"
	"github.com/kutrace/rawtoevent/pkg/log"
)

// RunDecode wires the input stream, exporters and decode session together
// and reports the end-of-run statistics on stderr.
func RunDecode(cfg *config.DECODE, args []string) error {
	log.Loger.SetLevel(log.LevelTransform(strings.ToUpper(cfg.LogLevel)))

	var in io.Reader = os.Stdin
	if len(args) >= 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("%s did not open:%v", args[0], err)
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("create output failed:%v", err)
		}
		defer f.Close()
		out = f
	}

	consumers := []consumer.Consumer{textexporter.NewTextExporter(out, cfg.Verbose)}
	if cfg.Exporter == "sqlite" {
		scfg := sqlitexporter.NewConfig()
		if cfg.DbPath != "" {
			scfg.Path = cfg.DbPath
		}
		if s := sqlitexporter.NewSqliteExporter(scfg); s != nil {
			consumers = append(consumers, s)
		}
	}

	sess := core.NewDecodeSession(&core.SessionConfig{
		MaxBlock: cfg.MaxBlock,
		Verbose:  cfg.Verbose,
		HexEvent: cfg.HexEvent,
		KeepIdle: cfg.KeepIdle,
	}, consumers...)

	if err := sess.Run(in); err != nil {
		return err
	}

	stats := sess.Stats()
	fmt.Fprintf(os.Stderr, "rawtoevent: %d events\n", stats.EventCount)
	fmt.Fprintf(os.Stderr, "  %5.3f elapsed seconds: %5.3f to %5.3f\n",
		stats.TotalSeconds, stats.LoSeconds, stats.HiSeconds)
	if len(stats.UniqueCpus) > 0 {
		totalIrqs := stats.EventsByType[model.Irq>>8] + stats.EventsByType[model.IrqRet>>8]
		totalTraps := stats.EventsByType[model.Trap>>8] + stats.EventsByType[model.TrapRet>>8]
		log.Loger.Debug("%d CPUs, %d PIDs, %d context-switches, %d IRQ, %d Trap, %d Mark",
			len(stats.UniqueCpus), len(stats.UniquePids), stats.CtxSwitches,
			totalIrqs, totalTraps, stats.TotalMarks)
	}
	return nil
}
