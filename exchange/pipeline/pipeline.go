// Package pipeline wires the exchange stages into a chain of bounded
// FIFO channels: ingress → validator → matcher → publisher → position
// tracker, with a fan-out queue feeding the WebSocket hub. One worker
// per stage; shutdown cascades by closing each queue after its producer
// drains.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/exchange/correlator"
	"github.com/openalpha/options-exchange/exchange/engine"
	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/positions"
	"github.com/openalpha/options-exchange/exchange/publisher"
	"github.com/openalpha/options-exchange/exchange/types"
	"github.com/openalpha/options-exchange/exchange/validator"
	"github.com/openalpha/options-exchange/metrics"
)

// Stage names reported by the health endpoint.
const (
	StageValidator       = "validator"
	StageMatcher         = "matcher"
	StagePublisher       = "publisher"
	StagePositionTracker = "position_tracker"
	StageFanout          = "fanout"
)

// ErrOverloaded is returned when the ingress queue or the pending table
// is full. Surfaces as HTTP 503.
var ErrOverloaded = errors.New("exchange overloaded")

// ErrClosed is returned for submissions after shutdown started.
var ErrClosed = errors.New("pipeline is shut down")

// TimeoutError carries the request ID of an expired submission so the
// transport can echo it to the client. Unwraps to correlator.ErrTimeout.
type TimeoutError struct {
	RequestID string
}

func (e *TimeoutError) Error() string {
	return "request " + e.RequestID + " timed out"
}

func (e *TimeoutError) Unwrap() error { return correlator.ErrTimeout }

// Config sizes the queues.
type Config struct {
	QueueSize int
}

// Pipeline owns the stage workers and queues.
type Pipeline struct {
	logger    *zap.Logger
	validator *validator.Validator
	matcher   *engine.Matcher
	publisher *publisher.Publisher
	store     *positions.Store
	corr      *correlator.Correlator
	sink      Sink
	liveness  *liveness

	ingress   chan ingressMsg
	matchQ    chan matchMsg
	tradeQ    chan tradeMsg
	positionQ chan *publisher.Output
	fanoutQ   chan fanoutMsg
	phaseCh   chan phaseNote

	orderSeq atomic.Uint64

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

// New assembles a pipeline. Call Start to launch the workers and
// register OnPhaseChange with the phase manager.
func New(cfg Config, v *validator.Validator, m *engine.Matcher, pub *publisher.Publisher, store *positions.Store, corr *correlator.Correlator, sink Sink, logger *zap.Logger) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:    logger.Named("pipeline"),
		validator: v,
		matcher:   m,
		publisher: pub,
		store:     store,
		corr:      corr,
		sink:      sink,
		liveness:  newLiveness(StageValidator, StageMatcher, StagePublisher, StagePositionTracker, StageFanout),
		ingress:   make(chan ingressMsg, cfg.QueueSize),
		matchQ:    make(chan matchMsg, cfg.QueueSize),
		tradeQ:    make(chan tradeMsg, cfg.QueueSize),
		positionQ: make(chan *publisher.Output, cfg.QueueSize),
		fanoutQ:   make(chan fanoutMsg, cfg.QueueSize),
		phaseCh:   make(chan phaseNote, 8),
	}
}

// Start launches one worker per stage.
func (p *Pipeline) Start() {
	p.runStage(StageValidator, p.validatorWorker)
	p.runStage(StageMatcher, p.matcherWorker)
	p.runStage(StagePublisher, p.publisherWorker)
	p.runStage(StagePositionTracker, p.trackerWorker)
	p.runStage(StageFanout, p.fanoutWorker)
}

// Close drains and stops the pipeline. The HTTP server must stop
// accepting submissions first.
func (p *Pipeline) Close() {
	p.closeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ingress)
	}
	p.closeMu.Unlock()
	p.wg.Wait()
}

// Liveness reports per-stage worker health.
func (p *Pipeline) Liveness() map[string]bool {
	return p.liveness.Report()
}

// OnPhaseChange forwards a phase transition to the matcher worker.
// Registered with the phase manager; must not block its poll loop.
func (p *Pipeline) OnPhaseChange(from, to phase.State) {
	select {
	case p.phaseCh <- phaseNote{from: from, to: to}:
	default:
		p.logger.Warn("phase transition dropped, channel full",
			zap.String("to", string(to.Name)))
	}
}

// Submit pushes an order through the pipeline and blocks until its
// terminal outcome or the request deadline.
func (p *Pipeline) Submit(ctx context.Context, order *types.Order) (SubmitOutcome, error) {
	pending, err := p.corr.Register()
	if err != nil {
		return SubmitOutcome{}, ErrOverloaded
	}
	order.OrderID = p.orderSeq.Add(1)

	if err := p.enqueue(ingressMsg{submit: &SubmitRequest{Order: order, RequestID: pending.RequestID}}); err != nil {
		p.corr.Resolve(pending.RequestID, nil)
		return SubmitOutcome{}, err
	}

	res, err := p.corr.Await(ctx, pending)
	if errors.Is(err, correlator.ErrTimeout) {
		return SubmitOutcome{}, &TimeoutError{RequestID: pending.RequestID}
	}
	if err != nil {
		return SubmitOutcome{}, err
	}
	return res.(SubmitOutcome), nil
}

// Cancel pushes a cancellation through the pipeline and blocks until
// its outcome.
func (p *Pipeline) Cancel(ctx context.Context, orderID uint64, teamID string) (CancelResult, error) {
	pending, err := p.corr.Register()
	if err != nil {
		return CancelResult{}, ErrOverloaded
	}

	if err := p.enqueue(ingressMsg{cancel: &CancelRequest{OrderID: orderID, TeamID: teamID, RequestID: pending.RequestID}}); err != nil {
		p.corr.Resolve(pending.RequestID, nil)
		return CancelResult{}, err
	}

	res, err := p.corr.Await(ctx, pending)
	if errors.Is(err, correlator.ErrTimeout) {
		return CancelResult{}, &TimeoutError{RequestID: pending.RequestID}
	}
	if err != nil {
		return CancelResult{}, err
	}
	return res.(CancelResult), nil
}

// enqueue puts a message on the ingress queue without blocking: a full
// queue is an overload condition, not a stall of the accept loop.
func (p *Pipeline) enqueue(msg ingressMsg) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ingress <- msg:
		metrics.GetCollector().QueueDepth.WithLabelValues("ingress").Set(float64(len(p.ingress)))
		return nil
	default:
		return ErrOverloaded
	}
}

func (p *Pipeline) fanout(msgType, teamID string, payload any) {
	p.fanoutQ <- fanoutMsg{msgType: msgType, teamID: teamID, payload: payload}
}

// validatorWorker gates submissions and cancellations, then forwards
// accepted messages to the match queue.
func (p *Pipeline) validatorWorker() {
	defer close(p.matchQ)
	for msg := range p.ingress {
		switch {
		case msg.submit != nil:
			req := msg.submit
			if rej := p.validator.ValidateSubmit(req.Order); rej != nil {
				req.Order.Status = types.OrderStatusRejected
				p.corr.Resolve(req.RequestID, SubmitOutcome{Order: *req.Order, Rejection: rej})
				p.fanout(MsgOrderReject, req.Order.TeamID, OrderReject{
					ClientOrderID: req.Order.ClientOrderID,
					RejectCode:    rej.Code,
					RejectReason:  rej.Message,
				})
				continue
			}
			p.matchQ <- matchMsg{submit: req}

		case msg.cancel != nil:
			req := msg.cancel
			if rej := p.validator.ValidateCancel(); rej != nil {
				p.corr.Resolve(req.RequestID, CancelResult{Reason: ReasonNotAllowed})
				p.fanout(MsgCancelReject, req.TeamID, CancelAck{OrderID: req.OrderID, Reason: ReasonNotAllowed})
				continue
			}
			p.matchQ <- matchMsg{cancel: req}
		}
	}
}

// matcherWorker is the sole mutator of the order books. Phase
// transitions are folded into the same goroutine so auction uncrossing
// and held-order release never race normal matching.
func (p *Pipeline) matcherWorker() {
	defer close(p.tradeQ)
	for {
		select {
		case note := <-p.phaseCh:
			p.handlePhase(note)
		case msg, ok := <-p.matchQ:
			if !ok {
				return
			}
			switch {
			case msg.submit != nil:
				timer := metrics.NewTimer()
				res := p.matcher.Submit(msg.submit.Order)
				metrics.GetCollector().RecordMatchingLatency(msg.submit.Order.Symbol, timer.ElapsedMs())
				p.tradeQ <- tradeMsg{requestID: msg.submit.RequestID, result: res}
			case msg.cancel != nil:
				outcome := p.matcher.Cancel(msg.cancel.OrderID, msg.cancel.TeamID)
				p.tradeQ <- tradeMsg{cancelReq: msg.cancel, cancel: &outcome}
			}
		}
	}
}

func (p *Pipeline) handlePhase(note phaseNote) {
	results := p.matcher.OnPhaseChange(note.from, note.to)
	p.tradeQ <- tradeMsg{phaseTo: &note.to}
	for _, res := range results {
		p.tradeQ <- tradeMsg{result: res}
	}
}

// publisherWorker settles trades: fees, execution reports, request
// resolution and position deltas.
func (p *Pipeline) publisherWorker() {
	defer close(p.positionQ)
	for msg := range p.tradeQ {
		switch {
		case msg.phaseTo != nil:
			p.fanout(MsgPhaseChange, "", *msg.phaseTo)

		case msg.cancel != nil:
			p.settleCancel(msg.cancelReq, msg.cancel)

		case msg.result != nil:
			p.settleResult(msg.requestID, msg.result)
		}
	}
}

func (p *Pipeline) settleCancel(req *CancelRequest, outcome *engine.CancelOutcome) {
	var result CancelResult
	switch outcome.Status {
	case engine.CancelOK:
		result = CancelResult{Cancelled: true, Order: outcome.Order}
	case engine.CancelNotFound:
		result = CancelResult{Reason: ReasonNotFound}
	case engine.CancelNotOwner:
		result = CancelResult{Reason: ReasonNotOwner}
	case engine.CancelAlreadyTerminal:
		result = CancelResult{Reason: ReasonAlreadyTerminal, Order: outcome.Order}
	}
	p.corr.Resolve(req.RequestID, result)

	if result.Cancelled {
		p.fanout(MsgCancelAck, req.TeamID, CancelAck{OrderID: req.OrderID})
	} else {
		p.fanout(MsgCancelReject, req.TeamID, CancelAck{OrderID: req.OrderID, Reason: result.Reason})
	}
}

func (p *Pipeline) settleResult(requestID string, res *engine.Result) {
	outputs := make([]*publisher.Output, 0, len(res.Trades))
	for _, exec := range res.Trades {
		outputs = append(outputs, p.publisher.Process(exec))
	}

	// A non-empty request ID means the submitting handler is parked on
	// this outcome; released held orders and auction results carry none.
	if requestID != "" {
		p.corr.Resolve(requestID, SubmitOutcome{
			Order: res.Order,
			Fills: publisher.Fills(outputs, res.Order.OrderID),
		})
		p.fanout(MsgOrderAck, res.Order.TeamID, OrderAck{
			OrderID:       res.Order.OrderID,
			ClientOrderID: res.Order.ClientOrderID,
			Status:        res.Order.Status.String(),
		})
	}

	for _, out := range outputs {
		metrics.GetCollector().RecordTrade(out.Trade.Symbol, float64(out.Trade.Quantity))
		for _, report := range out.Reports {
			p.fanout(MsgExecutionReport, report.TeamID, report)
		}
		p.positionQ <- out
	}
}

// trackerWorker is the single writer of the positions map. It drains
// fully before exiting so every in-flight trade is applied.
func (p *Pipeline) trackerWorker() {
	defer close(p.fanoutQ)
	for out := range p.positionQ {
		p.store.Apply(out.Trade)
		t := out.Trade
		p.fanout(MsgPositionSnapshot, t.BuyerTeamID, PositionSnapshot{Positions: p.store.Snapshot(t.BuyerTeamID)})
		if t.SellerTeamID != t.BuyerTeamID {
			p.fanout(MsgPositionSnapshot, t.SellerTeamID, PositionSnapshot{Positions: p.store.Snapshot(t.SellerTeamID)})
		}
	}
}

// fanoutWorker is the single consumer of the fan-out queue.
func (p *Pipeline) fanoutWorker() {
	for msg := range p.fanoutQ {
		p.sink.Deliver(msg.msgType, msg.teamID, msg.payload)
	}
}
