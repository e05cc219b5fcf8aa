package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"
)

// mpcbRoutes are the upload endpoints of the MPCB Online Data Transmission
// protocol v2.3. The analyzer firmware posts to these paths verbatim,
// including the lowercase calibration ones.
var mpcbRoutes = []string{
	"realtimeUpload",
	"delayedUpload",
	"getConfig",
	"uploadConfig",
	"completedConfig",
	"getcalibrationconfig",
	"updatecalibrationconfig",
	"uploadDiagnosticInfo",
}

// mpcbAuthFields must be present in every upload body.
var mpcbAuthFields = []string{"site_id", "software_version_id", "time_stamp_data"}

// handleMPCBUpload acknowledges one protocol endpoint. The stub validates
// the auth envelope and echoes acceptance; readings still enter the pipeline
// through the CSV archive, not through this surface.
func (s *Server) handleMPCBUpload(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status": "failure",
				"msg":    "Invalid JSON body",
			})
			return
		}

		var missing []string
		for _, field := range mpcbAuthFields {
			if v, ok := body[field]; !ok || v == "" {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"status": "failure",
				"msg":    "Missing auth fields: " + strings.Join(missing, ", "),
			})
			return
		}

		s.logger.Printf("accepted /%s from site %v", endpoint, body["site_id"])
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "success",
			"endpoint":    endpoint,
			"received_at": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
