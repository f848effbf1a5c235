package dashboard

import (
	"math"
	"time"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendNoChange  Trend = "no_change"
	TrendNoTrend   Trend = "no_trend"
)

// MetricSummary compares the two most recent values of a headline metric.
type MetricSummary struct {
	Latest   *float64  `json:"latest"`
	Previous *float64  `json:"previous"`
	Trend    Trend     `json:"trend"`
	Change   float64   `json:"change"`
	At       time.Time `json:"at,omitempty"`
}

type DailyPoint struct {
	Date       string   `json:"date"`
	FullDate   string   `json:"fullDate"`
	Pain       *float64 `json:"pain"`
	Sleep      *float64 `json:"sleep"`
	Mood       *float64 `json:"mood"`
	PainCount  int      `json:"painCount"`
	SleepCount int      `json:"sleepCount"`
	MoodCount  int      `json:"moodCount"`
}

type Analytics struct {
	Room        string        `json:"room"`
	Period      Period        `json:"period"`
	Pain        MetricSummary `json:"pain"`
	Sleep       MetricSummary `json:"sleep"`
	Mood        MetricSummary `json:"mood"`
	Daily       []DailyPoint  `json:"daily"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

// summarize builds a MetricSummary from values newest first. For pain a
// lower value is better.
func summarize(values []float64, at time.Time, lowerIsBetter bool) MetricSummary {
	s := MetricSummary{Trend: TrendNoTrend, At: at}
	if len(values) > 0 {
		s.Latest = floatPtr(values[0])
	}
	if len(values) > 1 {
		s.Previous = floatPtr(values[1])
	}
	s.Trend, s.Change = trend(s.Latest, s.Previous, lowerIsBetter)
	return s
}

// trend treats a missing or zero value as no data.
func trend(current, previous *float64, lowerIsBetter bool) (Trend, float64) {
	if current == nil || previous == nil || *current == 0 || *previous == 0 {
		return TrendNoTrend, 0
	}
	diff := math.Abs(*current - *previous)
	better := *current > *previous
	worse := *current < *previous
	if lowerIsBetter {
		better, worse = worse, better
	}
	switch {
	case better:
		return TrendImproving, diff
	case worse:
		return TrendWorsening, diff
	}
	return TrendNoChange, 0
}

// dailySeries averages each day of the period ending today, oldest first.
// Days without entries have nil averages.
func dailySeries(data *TrackingData, days int, now time.Time) []DailyPoint {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	type acc struct {
		sum   float64
		count int
	}
	pain := map[string]*acc{}
	sleep := map[string]*acc{}
	mood := map[string]*acc{}
	add := func(m map[string]*acc, ts time.Time, v float64) {
		key := ts.In(loc).Format(time.DateOnly)
		a, ok := m[key]
		if !ok {
			a = &acc{}
			m[key] = a
		}
		a.sum += v
		a.count++
	}
	for _, e := range data.PainAssessments {
		add(pain, e.Timestamp, float64(e.PainLevel))
	}
	for _, e := range data.SleepQuality {
		add(sleep, e.Timestamp, float64(e.SleepQuality.SleepQuality))
	}
	for _, e := range data.MoodAssessments {
		add(mood, e.Timestamp, float64(e.MoodRating))
	}
	avg := func(m map[string]*acc, key string) (*float64, int) {
		a, ok := m[key]
		if !ok || a.count == 0 {
			return nil, 0
		}
		return floatPtr(round1(a.sum / float64(a.count))), a.count
	}

	out := make([]DailyPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		key := day.Format(time.DateOnly)
		p := DailyPoint{Date: day.Format("Jan 02"), FullDate: key}
		p.Pain, p.PainCount = avg(pain, key)
		p.Sleep, p.SleepCount = avg(sleep, key)
		p.Mood, p.MoodCount = avg(mood, key)
		out = append(out, p)
	}
	return out
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func floatPtr(v float64) *float64 { return &v }
