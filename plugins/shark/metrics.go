package shark

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the last polled state of every robot.
type MetricsCollector struct {
	fleet *fleet
	now   func() time.Time

	success         *prometheus.Desc
	connected       *prometheus.Desc
	batteryPercent  *prometheus.Desc
	charging        *prometheus.Desc
	errorCode       *prometheus.Desc
	operatingMode   *prometheus.Desc
	powerMode       *prometheus.Desc
	cleaningMinutes *prometheus.Desc
	rssi            *prometheus.Desc
	cleanedArea     *prometheus.Desc
	cleanedCells    *prometheus.Desc
	mapAge          *prometheus.Desc
}

func NewMetricsCollector(f *fleet) *MetricsCollector {
	labels := []string{"dsn", "name", "model"}
	return &MetricsCollector{
		fleet: f,
		now:   time.Now,
		success: prometheus.NewDesc("sharkd_shark_scrape_success",
			"Last status poll success (1=ok, 0=error)", nil, nil),
		connected: prometheus.NewDesc("sharkd_shark_connected",
			"Whether the robot is online (1=yes, 0=no)", labels, nil),
		batteryPercent: prometheus.NewDesc("sharkd_shark_battery_percent",
			"Battery capacity (0-100)", labels, nil),
		charging: prometheus.NewDesc("sharkd_shark_charging",
			"Whether the robot is charging (1=yes, 0=no)", labels, nil),
		errorCode: prometheus.NewDesc("sharkd_shark_error_code",
			"Error code reported by the robot (0=none)", labels, nil),
		operatingMode: prometheus.NewDesc("sharkd_shark_operating_mode",
			"Operating mode (label)", append(labels, "mode"), nil),
		powerMode: prometheus.NewDesc("sharkd_shark_power_mode",
			"Suction power mode (label)", append(labels, "mode"), nil),
		cleaningMinutes: prometheus.NewDesc("sharkd_shark_cleaning_minutes",
			"Cleaning time statistic (minutes)", labels, nil),
		rssi: prometheus.NewDesc("sharkd_shark_rssi_dbm",
			"Wi-Fi signal strength (dBm)", labels, nil),
		cleanedArea: prometheus.NewDesc("sharkd_shark_cleaned_area_square_meters",
			"Cleaned area in the last map snapshot", labels, nil),
		cleanedCells: prometheus.NewDesc("sharkd_shark_cleaned_cells",
			"Cleaned cells in the last map snapshot", labels, nil),
		mapAge: prometheus.NewDesc("sharkd_shark_map_age_seconds",
			"Seconds since the last map snapshot was fetched", labels, nil),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.success
	ch <- c.connected
	ch <- c.batteryPercent
	ch <- c.charging
	ch <- c.errorCode
	ch <- c.operatingMode
	ch <- c.powerMode
	ch <- c.cleaningMinutes
	ch <- c.rssi
	ch <- c.cleanedArea
	ch <- c.cleanedCells
	ch <- c.mapAge
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	states, ok := c.fleet.snapshot()
	ch <- prometheus.MustNewConstMetric(c.success, prometheus.GaugeValue, boolFloat(ok))

	for _, st := range states {
		lv := []string{st.Device.DSN, st.Device.ProductName, st.Device.Model}
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolFloat(st.Device.Connected), lv...)

		if s := st.Status; s != nil {
			ch <- prometheus.MustNewConstMetric(c.batteryPercent, prometheus.GaugeValue, float64(s.BatteryCapacity), lv...)
			ch <- prometheus.MustNewConstMetric(c.charging, prometheus.GaugeValue, boolFloat(s.Charging), lv...)
			ch <- prometheus.MustNewConstMetric(c.errorCode, prometheus.GaugeValue, float64(s.ErrorCode), lv...)
			ch <- prometheus.MustNewConstMetric(c.cleaningMinutes, prometheus.GaugeValue, float64(s.CleaningMinutes), lv...)
			ch <- prometheus.MustNewConstMetric(c.rssi, prometheus.GaugeValue, float64(s.RSSI), lv...)
			if s.OperatingMode != "" {
				ch <- prometheus.MustNewConstMetric(c.operatingMode, prometheus.GaugeValue, 1, append(lv, s.OperatingMode)...)
			}
			if s.PowerMode != "" {
				ch <- prometheus.MustNewConstMetric(c.powerMode, prometheus.GaugeValue, 1, append(lv, s.PowerMode)...)
			}
		}

		if m := st.Map; m != nil {
			ch <- prometheus.MustNewConstMetric(c.cleanedArea, prometheus.GaugeValue, m.AreaSqm, lv...)
			ch <- prometheus.MustNewConstMetric(c.cleanedCells, prometheus.GaugeValue, float64(m.CleanedCells), lv...)
			if !m.FetchedAt.IsZero() {
				ch <- prometheus.MustNewConstMetric(c.mapAge, prometheus.GaugeValue, c.now().Sub(m.FetchedAt).Seconds(), lv...)
			}
		}
	}
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
