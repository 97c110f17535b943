package acquisition

import (
	"context"
	"time"

	"github.com/digitizerlab/ats-go/internal/logger"
)

// deviceStep is one driver call together with the fields it consumes
type deviceStep struct {
	op     string
	fields []field
	call   func(codes []uint32) StatusCode
}

// run reads the codes of the step's fields, issues the call and commits the
// fields only when the board accepted it
func (e *Engine) run(ctx context.Context, step deviceStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	codes, err := readCodes(step.fields)
	if err != nil {
		return err
	}
	if err := e.check(step.op, step.call(codes)); err != nil {
		return err
	}
	for _, f := range step.fields {
		f.commit()
	}
	return nil
}

func readCodes(fields []field) ([]uint32, error) {
	codes := make([]uint32, len(fields))
	for i, f := range fields {
		code, err := f.Code()
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// configSteps returns the board configuration calls in the order the board
// expects them
func (e *Engine) configSteps() []deviceStep {
	r, d, h := e.registry, e.driver, e.handle

	steps := []deviceStep{{
		op:     OpSetCaptureClock,
		fields: []field{r.ClockSource, r.SampleRate, r.ClockEdge, r.Decimation},
		call: func(c []uint32) StatusCode {
			return d.SetCaptureClock(h, c[0], c[1], c[2], c[3])
		},
	}}

	for _, in := range Inputs {
		steps = append(steps,
			deviceStep{
				op:     OpInputControl,
				fields: []field{r.Coupling[in], r.Range[in], r.Impedance[in]},
				call: func(c []uint32) StatusCode {
					return d.InputControl(h, in.ID(), c[0], c[1], c[2])
				},
			},
			deviceStep{
				op:     OpSetBWLimit,
				fields: []field{r.BWLimit[in]},
				call: func(c []uint32) StatusCode {
					return d.SetBWLimit(h, in.ID(), c[0])
				},
			})
	}

	return append(steps,
		deviceStep{
			op: OpSetTriggerOp,
			fields: []field{
				r.TriggerOperation,
				r.TriggerEngine[0], r.TriggerSource[0], r.TriggerSlope[0], r.TriggerLevel[0],
				r.TriggerEngine[1], r.TriggerSource[1], r.TriggerSlope[1], r.TriggerLevel[1],
			},
			call: func(c []uint32) StatusCode {
				return d.SetTriggerOperation(h, TriggerOperationArgs{
					Operation: c[0],
					Engine1:   c[1],
					Source1:   c[2],
					Slope1:    c[3],
					Level1:    c[4],
					Engine2:   c[5],
					Source2:   c[6],
					Slope2:    c[7],
					Level2:    c[8],
				})
			},
		},
		deviceStep{
			op:     OpSetExternalTrig,
			fields: []field{r.ExternalTriggerCoupling, r.ExternalTriggerRange},
			call: func(c []uint32) StatusCode {
				return d.SetExternalTrigger(h, c[0], c[1])
			},
		},
		deviceStep{
			op:     OpSetTriggerDelay,
			fields: []field{r.TriggerDelay},
			call: func(c []uint32) StatusCode {
				return d.SetTriggerDelay(h, c[0])
			},
		},
		deviceStep{
			op:     OpSetTriggerTimeOut,
			fields: []field{r.TimeoutTicks},
			call: func(c []uint32) StatusCode {
				return d.SetTriggerTimeOut(h, c[0])
			},
		},
	)
}

// Configure applies settings to the registry and writes the clock, input
// and trigger configuration to the board. Each call's fields are committed
// as soon as the board accepts it. On failure the engine keeps its previous
// state and fields committed so far stay committed.
func (e *Engine) Configure(ctx context.Context, settings ...Setting) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if err := e.errIfClosed("configure"); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		e.metrics.RecordDuration("configure", time.Since(start).Seconds())
	}()

	if err := e.registry.Apply(settings...); err != nil {
		return wrapError(err, "configure", "")
	}

	for _, step := range e.configSteps() {
		if err := e.run(ctx, step); err != nil {
			e.log.Warn("configuration failed",
				logger.String("operation", step.op),
				logger.Error(err))
			return wrapError(err, step.op, "")
		}
	}

	e.setState(StateConfigured)
	e.log.Info("board configured", logger.Duration("elapsed", time.Since(start)))
	return nil
}
