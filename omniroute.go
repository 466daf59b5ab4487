// Package omniroute provides a top-level convenience entry point for
// wiring the relay: a registry preloaded with every built-in
// dispatcher, ordered so specialized adapters win over the default
// OpenAI-compatible one.
//
// Usage:
//
//	import "github.com/BaSui01/omniroute"
//
//	reg := omniroute.NewDefaultRegistry(logger)
//	rt := router.New(reg, configService, router.Options{Logger: logger})
package omniroute

import (
	"go.uber.org/zap"

	"github.com/BaSui01/omniroute/relay"
	"github.com/BaSui01/omniroute/relay/dispatchers/gemini"
	"github.com/BaSui01/omniroute/relay/dispatchers/omni"
	"github.com/BaSui01/omniroute/relay/dispatchers/openaicompat"
	"github.com/BaSui01/omniroute/relay/dispatchers/stt"
)

// NewDefaultRegistry returns a registry with the built-in dispatchers:
//
//	gemini_audio       priority 20
//	openai_stt         priority 15
//	qwen_omni          priority 15
//	gemini             priority 10
//	openai_compatible  priority 0
//
// Registration order breaks the stt/omni priority tie in favor of the
// dedicated speech pipeline.
func NewDefaultRegistry(logger *zap.Logger) *relay.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := relay.NewRegistry(logger)
	reg.Register(gemini.NewAudio(logger))
	reg.Register(stt.New(logger))
	reg.Register(omni.New(logger))
	reg.Register(gemini.New(logger))
	reg.Register(openaicompat.New(logger))
	return reg
}
