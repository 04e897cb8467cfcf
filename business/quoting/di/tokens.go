// Package di contains dependency injection tokens for the quoting context.
package di

import (
	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/business/quoting/infra/ethereum"
	"github.com/fd1az/quote-engine/business/quoting/infra/httpapi"
	"github.com/fd1az/quote-engine/business/quoting/infra/redisfeed"
	"github.com/fd1az/quote-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	QuoteService = di.NewToken[*app.QuoteService]("quoting.QuoteService")
	Swapper      = di.NewToken[app.Swapper]("quoting.Swapper")
	Settings     = di.NewToken[*app.Settings]("quoting.Settings")
	Watcher      = di.NewToken[*app.Watcher]("quoting.Watcher")
	HTTPServer   = di.NewToken[*httpapi.Server]("quoting.HTTPServer")
)

// Private dependency tokens - internal to quoting module
var (
	ChainReader = di.NewToken[*ethereum.ChainReader]("quoting:chainReader")
	Sources     = di.NewToken[[]app.QuoteSource]("quoting:sources")
	Aggregator  = di.NewToken[*app.RouteAggregator]("quoting:aggregator")
	Oracle      = di.NewToken[*app.OracleResolver]("quoting:oracle")
	HeadTrigger = di.NewToken[*ethereum.HeadTrigger]("quoting:headTrigger")
	Trigger     = di.NewToken[app.Trigger]("quoting:trigger")
	Stream      = di.NewToken[*httpapi.StreamHub]("quoting:stream")
	// Snapshots is nil when redis is disabled.
	Snapshots = di.NewToken[*redisfeed.Publisher]("quoting:snapshots")
)

func GetQuoteService(c di.ServiceRegistry) *app.QuoteService {
	return di.GetToken(c, QuoteService)
}

func GetSwapper(c di.ServiceRegistry) app.Swapper {
	return di.GetToken(c, Swapper)
}

func GetSettings(c di.ServiceRegistry) *app.Settings {
	return di.GetToken(c, Settings)
}

func GetWatcher(c di.ServiceRegistry) *app.Watcher {
	return di.GetToken(c, Watcher)
}

func GetHTTPServer(c di.ServiceRegistry) *httpapi.Server {
	return di.GetToken(c, HTTPServer)
}

func GetChainReader(c di.ServiceRegistry) *ethereum.ChainReader {
	return di.GetToken(c, ChainReader)
}

func GetSources(c di.ServiceRegistry) []app.QuoteSource {
	return di.GetToken(c, Sources)
}

func GetAggregator(c di.ServiceRegistry) *app.RouteAggregator {
	return di.GetToken(c, Aggregator)
}

func GetOracle(c di.ServiceRegistry) *app.OracleResolver {
	return di.GetToken(c, Oracle)
}

// GetHeadTrigger returns nil when the watcher runs on a timer.
func GetHeadTrigger(c di.ServiceRegistry) *ethereum.HeadTrigger {
	return di.GetToken(c, HeadTrigger)
}

func GetTrigger(c di.ServiceRegistry) app.Trigger {
	return di.GetToken(c, Trigger)
}

func GetStream(c di.ServiceRegistry) *httpapi.StreamHub {
	return di.GetToken(c, Stream)
}

func GetSnapshots(c di.ServiceRegistry) *redisfeed.Publisher {
	return di.GetToken(c, Snapshots)
}
