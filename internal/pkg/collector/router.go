package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/fritz-collector/internal/pkg/homeauto"
	"github.com/anicoll/fritz-collector/internal/pkg/model"
	"github.com/anicoll/fritz-collector/internal/pkg/retry"
)

const routerCollector = "router"

// ConnectPolicy bounds the router connect: three attempts, 1s doubling up
// to 10s.
var ConnectPolicy = retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second}

// RouterSession is a connected device session.
type RouterSession interface {
	homeauto.Session
}

// Connector opens a fresh session per collection cycle.
type Connector func(ctx context.Context) (RouterSession, error)

type plugReader interface {
	Read(ctx context.Context, s homeauto.Session) []model.SmartPlugReading
}

type Router struct {
	connect  Connector
	retry    *retry.Executor
	plugs    plugReader
	notifier notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewRouter(connect Connector, executor *retry.Executor, plugs plugReader, n notifier) *Router {
	return &Router{
		connect:  connect,
		retry:    executor,
		plugs:    plugs,
		notifier: n,
		logger:   zap.L(),
		now:      time.Now,
	}
}

// wanQueries are tried in order: cable first, then DSL.
var wanQueries = []struct {
	kind    string
	service string
}{
	{"cable", "WANIPConnection1"},
	{"dsl", "WANPPPConnection1"},
}

// Collect always returns a snapshot. Fields that could not be read are
// absent.
func (r *Router) Collect(ctx context.Context) *model.RouterSnapshot {
	snap := &model.RouterSnapshot{CollectedAt: r.now().UTC()}

	s, err := retry.Value(ctx, r.retry, func(ctx context.Context) (RouterSession, error) {
		return r.connect(ctx)
	})
	if err != nil {
		r.logger.Error("unable to connect to router", zap.Error(err))
		notify(r.notifier, fmt.Sprintf("unable to connect to router: %v", err))
		observe(routerCollector, resultFailed)
		return snap
	}

	snap.Status = r.status(ctx, s)
	snap.SmartPlugs = r.plugs.Read(ctx, s)
	observe(routerCollector, resultOK)
	return snap
}

func (r *Router) status(ctx context.Context, s RouterSession) model.RouterStatus {
	st := model.RouterStatus{}

	var errs []string
	for _, q := range wanQueries {
		status, ip, err := wanStatus(ctx, s, q.service)
		if err != nil {
			r.logger.Warn("wan status query failed", zap.String("kind", q.kind), zap.String("service", q.service), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", q.kind, err))
			continue
		}
		st.ConnectionStatus = status
		st.ExternalIP = ip
		st.Online = parseOnline(status)
		r.logger.Info("router status", zap.String("kind", q.kind),
			zap.Stringp("connection_status", status), zap.Stringp("external_ip", ip))
		errs = nil
		break
	}
	if errs != nil {
		r.logger.Error("unable to query router status", zap.Strings("errors", errs))
		notify(r.notifier, "unable to query router status: "+strings.Join(errs, "; "))
	}

	hosts, err := s.CallAction(ctx, "Hosts1", "GetHostNumberOfEntries", nil)
	if err == nil {
		if n, perr := strconv.ParseInt(strings.TrimSpace(hosts["NewHostNumberOfEntries"]), 10, 64); perr == nil {
			st.ActiveDeviceCount = &n
		} else {
			err = fmt.Errorf("invalid host count %q", hosts["NewHostNumberOfEntries"])
		}
	}
	if err != nil {
		r.logger.Error("unable to query active device count", zap.Error(err))
		notify(r.notifier, fmt.Sprintf("unable to query active device count: %v", err))
	}
	return st
}

func wanStatus(ctx context.Context, s RouterSession, service string) (status, ip *string, err error) {
	info, err := s.CallAction(ctx, service, "GetStatusInfo", nil)
	if err != nil {
		return nil, nil, err
	}
	addr, err := s.CallAction(ctx, service, "GetExternalIPAddress", nil)
	if err != nil {
		return nil, nil, err
	}
	return nonEmpty(info["NewConnectionStatus"]), nonEmpty(addr["NewExternalIPAddress"]), nil
}

func parseOnline(status *string) model.Tristate {
	switch {
	case status == nil:
		return model.Unknown
	case strings.EqualFold(*status, "Connected"):
		return model.True
	default:
		return model.False
	}
}

func nonEmpty(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
