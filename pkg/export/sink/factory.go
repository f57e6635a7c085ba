package sink

import (
	"errors"
	"fmt"

	"mercator-hq/exporter/pkg/config"
	"mercator-hq/exporter/pkg/export"
	"mercator-hq/exporter/pkg/export/schema"
)

// Open builds the sink described by cfg.
func Open(cfg config.SinkConfig, registry *schema.Registry, opts ...Option) (*Named, error) {
	var (
		s   export.Sink
		err error
	)

	switch cfg.Type {
	case config.SinkJSON, config.SinkJSONL:
		w, ferr := OpenFile(cfg.Path)
		if ferr != nil {
			return nil, export.NewSinkError(cfg.Name, "", ferr)
		}
		if cfg.Type == config.SinkJSON {
			s = NewJSONSink(w, cfg.Pretty)
		} else {
			s = NewJSONLSink(w)
		}
	case config.SinkCSV:
		s = NewCSVSink(cfg.Path, registry)
	case config.SinkSQLite:
		s, err = NewSQLiteSink(cfg.Path, registry)
	case config.SinkAMQP:
		s, err = DialAMQP(cfg.AMQP)
	default:
		return nil, fmt.Errorf("sink %q: unknown type %q", cfg.Name, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	named := Instrument(cfg.Name, cfg.Type, s, opts...)
	named.opts.logger.Info("sink opened", "sink", cfg.Name, "type", cfg.Type)
	return named, nil
}

// OpenAll opens the named sinks from cfg. Sinks already opened are closed
// when a later one fails.
func OpenAll(cfg *config.Config, names []string, registry *schema.Registry, opts ...Option) (Multi, error) {
	var out Multi
	for _, name := range names {
		sc, ok := cfg.Sink(name)
		if !ok {
			return nil, errors.Join(fmt.Errorf("unknown sink %q", name), out.Close())
		}
		s, err := Open(sc, registry, opts...)
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		out = append(out, s)
	}
	return out, nil
}
