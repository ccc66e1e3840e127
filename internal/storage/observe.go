package storage

import (
	"context"
	"errors"
	"time"

	"example.com/labelengine/internal/domain"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
)

type observed struct {
	Store
	log *logger.Logger
	m   *metrics.Metrics
}

// Observe wraps s so every transaction is timed, logged and counted.
func Observe(s Store, log *logger.Logger, m *metrics.Metrics) Store {
	return &observed{Store: s, log: log.Component("storage"), m: m}
}

func (o *observed) InTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	start := time.Now()
	err := o.Store.InTx(ctx, op, fn)
	o.record(op, time.Since(start), err)
	return err
}

func (o *observed) View(ctx context.Context, op string, fn func(tx Tx) error) error {
	start := time.Now()
	err := o.Store.View(ctx, op, fn)
	o.record(op, time.Since(start), err)
	return err
}

func (o *observed) record(op string, d time.Duration, err error) {
	o.log.LogTx(op, d, err)
	o.m.RecordTx(op, txOutcome(err), d)
}

// txOutcome separates store failures from domain rejections, which also roll back.
func txOutcome(err error) string {
	var se *domain.StorageError
	switch {
	case err == nil:
		return "committed"
	case errors.As(err, &se):
		return "failed"
	default:
		return "rolled_back"
	}
}
