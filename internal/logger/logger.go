package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Domain uint8

const (
	UnknownDomain Domain = iota
	AllDomain
	InitDomain
	CLIDomain
	CatalogDomain
	CacheDomain
	InstallDomain
	FileSystemDomain
	GCSDomain
	HTTPSDomain
	S3Domain
)

var (
	domainFromString = map[string]Domain{
		"all":     AllDomain,
		"init":    InitDomain,
		"cli":     CLIDomain,
		"catalog": CatalogDomain,
		"cache":   CacheDomain,
		"install": InstallDomain,
		"fs":      FileSystemDomain,
		"gcs":     GCSDomain,
		"https":   HTTPSDomain,
		"s3":      S3Domain,
	}

	stringFromDomain = func() map[Domain]string {
		m := make(map[Domain]string, len(domainFromString))
		for s, d := range domainFromString {
			m[d] = s
		}
		return m
	}()
)

// Builder hands out one logger per domain. The level of each domain can be raised independently so that debug output
// can be requested for only part of the program.
type Builder struct {
	log          *zap.Logger
	defaultLevel zapcore.Level
	domainLevels map[Domain]zapcore.Level
	cache        map[Domain]*zap.Logger
}

func NewBuilder(out zapcore.WriteSyncer) *Builder {
	return &Builder{
		log:          zap.New(zapcore.NewCore(newEncoder(), out, zapcore.DebugLevel)),
		defaultLevel: zapcore.InfoLevel,
		domainLevels: map[Domain]zapcore.Level{},
		cache:        map[Domain]*zap.Logger{},
	}
}

// NewTestBuilder returns a builder that discards everything.
func NewTestBuilder() *Builder {
	return NewBuilder(zapcore.AddSync(io.Discard))
}

func (b *Builder) SetDomainLevel(domain string, level zapcore.Level) {
	switch d := domainFromString[domain]; d {
	case UnknownDomain:
		b.log.Warn("Unrecognised logger domain.", zap.String("domain", domain))
	case AllDomain:
		b.defaultLevel = level
	default:
		b.domainLevels[d] = level
	}
	// Levels are baked into cached loggers.
	b.cache = map[Domain]*zap.Logger{}
}

func (b *Builder) Domain(domain Domain) *zap.Logger {
	if l, ok := b.cache[domain]; ok {
		return l
	}

	targetLevel := b.defaultLevel
	if lvl, ok := b.domainLevels[domain]; ok {
		targetLevel = lvl
	}
	l := b.log.Named(stringFromDomain[domain]).WithOptions(zap.IncreaseLevel(targetLevel))
	b.cache[domain] = l
	return l
}

// Domains lists the names accepted by SetDomainLevel.
func Domains() []string {
	names := make([]string, 0, len(domainFromString))
	for n := range domainFromString {
		names = append(names, n)
	}
	return names
}
