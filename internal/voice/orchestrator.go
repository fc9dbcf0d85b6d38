// Package voice sequences the voice-query pipeline: ASR, translation,
// answer generation, back-translation, and optional synthesis, with the
// remote→local ASR fallback chain.
package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/aprslabs/sahayak/internal/apperr"
	"github.com/aprslabs/sahayak/internal/bhashini"
	"github.com/aprslabs/sahayak/internal/engine"
	"github.com/aprslabs/sahayak/internal/resilience"
)

// Request is one voice query. Exactly one of Audio or Text must be set.
type Request struct {
	Audio    []byte
	Text     string
	Language string // "te" or "en"; empty defaults to "te"
}

// Result accumulates pipeline output as the stages advance. Each stage sets
// only its own fields and never overwrites a field a prior stage filled.
type Result struct {
	ASRText         string
	TranslatedText  string
	AIResponseEN    string
	AIResponseLocal string
	AudioB64        string
	UsedFallback    bool
	// LocalizationMissing is set when back-translation failed and
	// AIResponseLocal degrades to the English answer.
	LocalizationMissing bool
}

// placeholderAnswer is returned when generation fails; generation failures
// are non-fatal so the caller still gets the transcript and translation.
const placeholderAnswer = "The assistant could not generate an answer right now. Please try again in a moment."

const promptFraming = "You are a legal assistant helping with a query about Indian law. " +
	"Provide a clear, accurate, and helpful response. " +
	"Note that your response is for informational purposes only and is not legal advice."

// SpeechPipeline is the remote ASR/translation/TTS backend.
type SpeechPipeline interface {
	TranscribeTranslate(ctx context.Context, audioB64 string) (asrText, enText string, err error)
	Transcribe(ctx context.Context, audioB64 string) (string, error)
	Translate(ctx context.Context, text, src, tgt string) (string, error)
	Speak(ctx context.Context, text, lang string) (string, error)
}

// LocalASR is the local transcription fallback.
type LocalASR interface {
	Enabled() bool
	Transcribe(ctx context.Context, wav []byte, lang string) (string, error)
}

// Generator produces the answer text.
type Generator interface {
	Chat(ctx context.Context, messages []engine.Message) (string, error)
}

// Orchestrator runs the pipeline. One Orchestrator serves all requests;
// every Run call works on its own Result, so no cross-request state exists.
type Orchestrator struct {
	pipeline    SpeechPipeline
	local       LocalASR
	generator   Generator
	ttsEnabled  bool
	maxAttempts int
	sleep       resilience.Sleeper // nil means real backoff waits
	logger      *slog.Logger
}

// New creates an Orchestrator. ttsEnabled controls whether stage 7 runs at
// all; a disabled TTS backend is not an error, the result simply carries no
// audio.
func New(pipeline SpeechPipeline, local LocalASR, gen Generator, ttsEnabled bool) *Orchestrator {
	return &Orchestrator{
		pipeline:    pipeline,
		local:       local,
		generator:   gen,
		ttsEnabled:  ttsEnabled,
		maxAttempts: resilience.DefaultMaxAttempts,
		logger:      slog.Default().With("component", "voice"),
	}
}

// Run executes the pipeline for one request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	// Stage 1: input resolution. Reject before any network call.
	lang := req.Language
	if lang == "" {
		lang = bhashini.LangTelugu
	}
	if lang != bhashini.LangTelugu && lang != bhashini.LangEnglish {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "unsupported language %q", lang)
	}
	if req.Text == "" && len(req.Audio) == 0 {
		return nil, apperr.Wrapf(apperr.ErrInvalidInput, "either audio or text is required")
	}

	res := &Result{}

	if req.Text != "" {
		res.ASRText = req.Text
	} else if err := o.transcribe(ctx, req.Audio, lang, res); err != nil {
		return nil, err
	}

	// Stage 4: translation to English, unless the combined pipeline call
	// already produced it or the source is English.
	if res.TranslatedText == "" {
		if lang == bhashini.LangEnglish {
			res.TranslatedText = res.ASRText
		} else {
			translated, err := o.translateRetry(ctx, res.ASRText, bhashini.LangTelugu, bhashini.LangEnglish)
			if err != nil {
				// Never pass untranslated text through to generation.
				return nil, apperr.Wrap(apperr.ErrTranslationFailed, err)
			}
			res.TranslatedText = translated
		}
	}

	// Stage 5: answer generation, non-fatal.
	answer, err := o.generator.Chat(ctx, []engine.Message{
		{Role: "user", Content: promptFraming + "\n\nUSER QUERY:\n" + res.TranslatedText},
	})
	if err != nil || answer == "" {
		o.logger.Warn("generation failed, returning placeholder", "error", err)
		answer = placeholderAnswer
	}
	res.AIResponseEN = answer

	// Stage 6: translate the answer back, degrading to English on failure.
	if lang == bhashini.LangEnglish {
		res.AIResponseLocal = res.AIResponseEN
	} else {
		translated, err := o.translateRetry(ctx, res.AIResponseEN, bhashini.LangEnglish, bhashini.LangTelugu)
		if err != nil {
			o.logger.Warn("back-translation failed, returning English answer", "error", err)
			res.AIResponseLocal = res.AIResponseEN
			res.LocalizationMissing = true
		} else {
			res.AIResponseLocal = translated
		}
	}

	// Stage 7: optional synthesis.
	if o.ttsEnabled && !res.LocalizationMissing {
		audio, err := o.pipeline.Speak(ctx, res.AIResponseLocal, lang)
		if err != nil {
			o.logger.Warn("tts failed, omitting audio", "error", err)
		} else {
			res.AudioB64 = audio
		}
	}

	return res, nil
}

// transcribe runs stage 2 (remote ASR, combined with translation for
// Telugu) and, on any remote failure, stage 3 (local fallback).
func (o *Orchestrator) transcribe(ctx context.Context, audio []byte, lang string, res *Result) error {
	audioB64 := base64.StdEncoding.EncodeToString(audio)

	var remoteErr error
	if lang == bhashini.LangTelugu {
		asrText, enText, err := o.pipeline.TranscribeTranslate(ctx, audioB64)
		if err == nil {
			res.ASRText = asrText
			res.TranslatedText = enText
			return nil
		}
		remoteErr = err
	} else {
		asrText, err := o.pipeline.Transcribe(ctx, audioB64)
		if err == nil {
			res.ASRText = asrText
			return nil
		}
		remoteErr = err
	}

	if o.local == nil || !o.local.Enabled() {
		return apperr.Wrap(apperr.ErrAsrUnavailable, remoteErr)
	}
	o.logger.Warn("remote ASR failed, trying local fallback", "language", lang, "error", remoteErr)

	text, localErr := o.local.Transcribe(ctx, audio, lang)
	if localErr != nil {
		return apperr.Wrap(apperr.ErrAsrUnavailable,
			fmt.Errorf("remote: %w; local: %w", remoteErr, localErr))
	}
	res.ASRText = text
	res.UsedFallback = true
	return nil
}

func (o *Orchestrator) translateRetry(ctx context.Context, text, src, tgt string) (string, error) {
	var out string
	err := resilience.RetryWithSleeper(ctx, "translate_"+src+"_"+tgt, o.maxAttempts, func() error {
		translated, err := o.pipeline.Translate(ctx, text, src, tgt)
		if err != nil {
			return err
		}
		out = translated
		return nil
	}, o.sleep)
	if err != nil {
		return "", err
	}
	return out, nil
}
