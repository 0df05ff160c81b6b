package automation

import (
	"context"

	"github.com/sirupsen/logrus"
)

// saga collects compensations for a multi-document mutation. Steps that
// succeed register their undo; rollback runs them newest first.
type saga struct {
	log    logrus.FieldLogger
	op     string
	undo   []func(context.Context) error
	fields logrus.Fields
}

func newSaga(log logrus.FieldLogger, op string, fields logrus.Fields) *saga {
	return &saga{log: log, op: op, fields: fields}
}

func (s *saga) compensate(step func(context.Context) error) {
	s.undo = append(s.undo, step)
}

// rollback undoes every registered step. It ignores ctx cancellation so a
// cancelled request still restores state.
func (s *saga) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(s.undo) - 1; i >= 0; i-- {
		if err := s.undo[i](ctx); err != nil {
			s.log.WithFields(s.fields).WithField("op", s.op).WithError(err).Error("compensation failed, manual repair needed")
		}
	}
	s.undo = nil
}
