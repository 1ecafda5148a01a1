package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	// Register all transports so tcp://, ipc://, and inproc:// addresses work.
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/photonfoundry/beamroute/internal/logging"
	"github.com/photonfoundry/beamroute/model"
)

// recvDeadline bounds each blocking Recv so context cancellation is
// noticed promptly.
const recvDeadline = 500 * time.Millisecond

// Config describes where telemetry updates arrive from.
type Config struct {
	// Addr is a mangos address such as tcp://127.0.0.1:9750 or
	// ipc:///tmp/beamroute.sock.
	Addr string
	// Topic filters the SUB socket. Empty subscribes to everything.
	Topic string
	// Dial connects to a remote publisher instead of listening locally.
	Dial bool

	Logger logging.Logger
}

// Source receives telemetry updates on a mangos SUB socket, decodes them,
// and hands them to a submit function (normally PropagationBus.Submit).
// Decode failures are logged and skipped; the loop never stops on bad
// input.
type Source struct {
	cfg    Config
	log    logging.Logger
	sock   mangos.Socket
	submit func(model.TelemetryUpdate) bool
}

// NewSource opens and connects the SUB socket.
func NewSource(cfg Config, submit func(model.TelemetryUpdate) bool) (*Source, error) {
	if cfg.Addr == "" {
		return nil, errors.New("telemetry: address is required")
	}
	if submit == nil {
		return nil, errors.New("telemetry: submit function is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}

	sock, err := sub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("telemetry: create sub socket: %w", err)
	}
	if err := sock.SetOption(mangos.OptionSubscribe, []byte(cfg.Topic)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("telemetry: subscribe %q: %w", cfg.Topic, err)
	}
	if err := sock.SetOption(mangos.OptionRecvDeadline, recvDeadline); err != nil {
		sock.Close()
		return nil, fmt.Errorf("telemetry: set recv deadline: %w", err)
	}

	if cfg.Dial {
		err = sock.Dial(cfg.Addr)
	} else {
		err = sock.Listen(cfg.Addr)
	}
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Addr, err)
	}

	return &Source{cfg: cfg, log: log, sock: sock, submit: submit}, nil
}

// Run receives until the context is cancelled, then closes the socket.
func (s *Source) Run(ctx context.Context) error {
	defer s.sock.Close()

	s.log.Info(ctx, "telemetry source running",
		logging.String("addr", s.cfg.Addr),
		logging.String("topic", s.cfg.Topic))

	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := s.sock.Recv()
		if err != nil {
			if errors.Is(err, mangos.ErrRecvTimeout) {
				continue
			}
			if errors.Is(err, mangos.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telemetry: recv: %w", err)
		}

		update, err := DecodeUpdate(bytes.TrimPrefix(raw, []byte(s.cfg.Topic)))
		if err != nil {
			s.log.Warn(ctx, "discarding undecodable telemetry message", logging.Err(err))
			continue
		}
		s.submit(update)
	}
}

// Close shuts the socket down, unblocking a running Recv.
func (s *Source) Close() error {
	return s.sock.Close()
}

// DecodeUpdate parses a JSON telemetry payload. A device ID is required;
// every other field is optional and merges over last-known state. Updates
// arriving without an event ID get one minted here, so the whole
// apply-recompute-publish chain is traceable.
func DecodeUpdate(payload []byte) (model.TelemetryUpdate, error) {
	var update model.TelemetryUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return model.TelemetryUpdate{}, fmt.Errorf("decode update: %w", err)
	}
	if update.DeviceID == "" {
		return model.TelemetryUpdate{}, errors.New("decode update: missing device_id")
	}
	if update.EventID == "" {
		update.EventID = logging.NewEventID()
	}
	return update, nil
}
