package consumer

import "github.com/kutrace/rawtoevent/pkg/core/model"

// Consumer receives the decoded stream in emission order. Comment and
// Pragma carry whole preformatted lines without their trailing newline.
type Consumer interface {
	Consume(ev *model.DecodedEvent) error
	ConsumeName(nd *model.NameDef) error
	Comment(line string) error
	Pragma(line string) error
	Shutdown() error
}
