package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/event"
)

// TriviaMetrics counts contest activity from the events of the bus.
type TriviaMetrics struct {
	ContestsActive  prometheus.Gauge
	ContestsEnded   *prometheus.CounterVec
	QuestionsAsked  prometheus.Counter
	QuestionTimeout prometheus.Counter
	AnswersCredited prometheus.Counter
}

func NewTriviaMetrics(reg prometheus.Registerer, eb *event.Bus) *TriviaMetrics {
	m := &TriviaMetrics{
		ContestsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trivia",
			Name:      "contests_active",
			Help:      "Number of running contests.",
		}),
		ContestsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "contests_ended_total",
			Help:      "Number of ended contests by reason.",
		}, []string{"reason"}),
		QuestionsAsked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "questions_asked_total",
			Help:      "Number of asked questions.",
		}),
		QuestionTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "questions_timed_out_total",
			Help:      "Number of questions nobody answered in time.",
		}),
		AnswersCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "answers_credited_total",
			Help:      "Number of credited correct answers.",
		}),
	}

	reg.MustRegister(m.ContestsActive, m.ContestsEnded, m.QuestionsAsked, m.QuestionTimeout, m.AnswersCredited)

	event.On(eb, func(context.Context, domain.EventSessionStarted) error {
		m.ContestsActive.Inc()
		return nil
	})
	event.On(eb, func(_ context.Context, e domain.EventSessionEnded) error {
		m.ContestsActive.Dec()
		m.ContestsEnded.WithLabelValues(string(e.Contest.Reason)).Inc()
		return nil
	})
	event.On(eb, func(context.Context, domain.EventQuestionAsked) error {
		m.QuestionsAsked.Inc()
		return nil
	})
	event.On(eb, func(context.Context, domain.EventQuestionTimedOut) error {
		m.QuestionTimeout.Inc()
		return nil
	})
	event.On(eb, func(context.Context, domain.EventScoreCredited) error {
		m.AnswersCredited.Inc()
		return nil
	})

	return m
}
