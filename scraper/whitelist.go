package scraper

import (
	"fmt"

	"ecotrade_flows/models"
)

// pendingFlowCodes are the flow headings cleared in round 1. The same list
// applies to every measure type.
var pendingFlowCodes = []string{
	"STANDARD_SII",
	"Curve orarie ( flussi PDO / RFO)",
	"Letture non orarie ( flussi PNO / RNO)",
	"Dati di misura di switching ( flussi SNM)",
}

// deliverableCodes are the file-name codes downloaded in round 2, per measure.
var deliverableCodes = map[models.MeasureType][]string{
	models.MeasurePower: {
		"SNF", "F2G", "SOF", "SNM2G", "RFO2G", "PDO2G", "RNV2G", "SNM", "PNO", "VNO2G",
		"PNO2G", "VNO", "SMIS", "RNO2G", "RNV", "RNO", "RSN2G", "RSN", "PDO", "RFO",
		"DS2G", "DSR2G", "DS",
	},
	models.MeasureGas: {"TML", "D01", "IGMG", "A01", "RML"},
}

func PendingFlowCodes(m models.MeasureType) ([]string, error) {
	if _, ok := deliverableCodes[m]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasure, m)
	}
	return pendingFlowCodes, nil
}

func DeliverableCodes(m models.MeasureType) ([]string, error) {
	codes, ok := deliverableCodes[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasure, m)
	}
	return codes, nil
}
