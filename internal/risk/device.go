package risk

import (
	"context"
	"fmt"

	"github.com/nixlim/fieldwatch/internal/alerts"
	"github.com/nixlim/fieldwatch/internal/survey"
)

// deviceRule flags groups of distinct device ids that report an identical
// coarse fingerprint, a sign of cloned or spoofed devices.
type deviceRule struct {
	cfg Config
}

func (deviceRule) Type() alerts.Type { return alerts.TypeDeviceAnomaly }

func (r deviceRule) Evaluate(ctx context.Context, responses []survey.Response) (ruleOutput, error) {
	var out ruleOutput

	clusters := make(map[string][]survey.Response)
	var order []string
	analyzed := 0
	for _, resp := range responses {
		if !resp.Correlatable() {
			out.skipped = append(out.skipped, skip(r.Type(), resp.ID, "missing device id"))
			continue
		}
		fp := Fingerprint(resp.Device)
		if fp == "" {
			out.skipped = append(out.skipped, skip(r.Type(), resp.ID, "missing user agent"))
			continue
		}
		analyzed++
		if _, ok := clusters[fp]; !ok {
			order = append(order, fp)
		}
		clusters[fp] = append(clusters[fp], resp)
	}

	for _, fp := range order {
		if err := ctx.Err(); err != nil {
			return ruleOutput{}, err
		}
		cluster := clusters[fp]
		devices := make(map[string]bool)
		for _, resp := range cluster {
			devices[resp.Device.DeviceID] = true
		}
		if len(devices) <= r.cfg.DeviceClusterThreshold {
			continue
		}

		family := UserAgentFamily(cluster[0].Device.UserAgent)
		message := fmt.Sprintf("%d different devices share an identical fingerprint (%s)", len(devices), family)
		c := alerts.NewCandidate(alerts.TypeDeviceAnomaly, alerts.SeverityMedium, fp, ids(cluster), message, map[string]any{
			"fingerprint":        fp,
			"similarDeviceCount": len(devices),
			"riskScore":          round2(float64(len(cluster)) / float64(analyzed)),
			"userAgentFamily":    family,
		})
		c.Location = latestLocation(cluster)
		c.SurveyID = commonSurvey(cluster)
		out.candidates = append(out.candidates, c)
	}
	return out, nil
}
