package offset

import "github.com/erikmalm/streamworks/logger"

// SettingsBuilder derives an immutable Setting per input Stream from
// configuration and broker-fetched metadata, per the precedence
// per-stream config -> per-system config -> Upcoming.
type SettingsBuilder struct {
	config ConfigSource
	logger logger.Logger
}

func NewSettingsBuilder(config ConfigSource, log logger.Logger) *SettingsBuilder {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &SettingsBuilder{config: config, logger: log}
}

// Build derives a Setting for each Stream present in metadata, reading
// defaultOffset and resetOffset from configuration keys of the form
// streams.<stream>.samza.offset.default / systems.<system>.samza.offset.default
// and streams.<stream>.samza.reset.offset.
func (b *SettingsBuilder) Build(metadata map[Stream]StreamMetadata) (map[Stream]Setting, error) {
	out := make(map[Stream]Setting, len(metadata))
	for stream, streamMeta := range metadata {
		def, err := b.resolveDefaultOffset(stream)
		if err != nil {
			return nil, err
		}
		reset := b.config.GetBool("streams." + stream.Name + ".samza.reset.offset")
		out[stream] = Setting{
			Metadata:      streamMeta,
			DefaultOffset: def,
			ResetOffset:   reset,
		}
	}
	return out, nil
}

func (b *SettingsBuilder) resolveDefaultOffset(stream Stream) (DefaultOffset, error) {
	if raw, ok := b.config.GetString("streams." + stream.Name + ".samza.offset.default"); ok {
		parsed, ok := ParseDefaultOffset(raw)
		if !ok {
			return Upcoming, &ConfigError{Stream: stream, Reason: "unrecognized offset default " + raw}
		}
		return parsed, nil
	}
	if raw, ok := b.config.GetString("systems." + stream.System + ".samza.offset.default"); ok {
		parsed, ok := ParseDefaultOffset(raw)
		if !ok {
			return Upcoming, &ConfigError{Stream: stream, Reason: "unrecognized offset default " + raw}
		}
		return parsed, nil
	}
	b.logger.Info("no offset default configured, using upcoming", "stream", stream.String())
	return Upcoming, nil
}
