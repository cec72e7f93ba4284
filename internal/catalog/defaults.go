package catalog

// Metric names used by the collectors. The request set applies to both
// request-log service kinds; the host set applies to the OS probe.
const (
	// Request-log metrics
	MetricRequestCount    = "request.count"
	MetricRequestPath     = "request.path"
	MetricRequestIP       = "request.ip"
	MetricRequestCountry  = "request.country"
	MetricRequestRegion   = "request.region"
	MetricRequestCity     = "request.city"
	MetricRequestUA       = "request.ua"
	MetricRequestUAFamily = "request.ua.family"
	MetricRequestMethod   = "request.method"
	MetricRequestUsers    = "request.users"
	MetricResponseTime    = "response.time"
	MetricResponseSize    = "response.size"
	MetricResponseStatus  = "response.status"
	MetricErrorCount      = "response.error.count"
	MetricErrorTypes      = "response.error.types"

	// Host metrics
	MetricUptime         = "uptime"
	MetricLoad1m         = "load.1m"
	MetricLoad5m         = "load.5m"
	MetricLoad15m        = "load.15m"
	MetricMemFree        = "mem.free"
	MetricMemUsage       = "mem.usage"
	MetricMemUsagePct    = "mem.usage.percent"
	MetricMemAll         = "mem.all"
	MetricStorageTotal   = "storage.total"
	MetricStorageUsed    = "storage.used"
	MetricStorageFree    = "storage.free"
	MetricNetworkIn      = "network.in"
	MetricNetworkOut     = "network.out"
	MetricNetworkInRate  = "network.in.rate"
	MetricNetworkOutRate = "network.out.rate"
	MetricCPUUsage       = "cpu.usage"
	MetricCPUUsageRate   = "cpu.usage.rate"
	MetricCPUUsagePct    = "cpu.usage.percent"
)

// RateSuffix is appended to a counter metric's name for its derived
// per-second series.
const RateSuffix = ".rate"

var requestMetrics = []Metric{
	{Name: MetricRequestCount, Kind: Count, Unit: UnitCount, Description: "Number of requests"},
	{Name: MetricRequestPath, Kind: Value, Unit: UnitCount, Description: "Requests per URL path"},
	{Name: MetricRequestIP, Kind: Value, Unit: UnitCount, Description: "Requests per client address"},
	{Name: MetricRequestCountry, Kind: Value, Unit: UnitCount, Description: "Requests per client country"},
	{Name: MetricRequestRegion, Kind: Value, Unit: UnitCount, Description: "Requests per client region"},
	{Name: MetricRequestCity, Kind: Value, Unit: UnitCount, Description: "Requests per client city"},
	{Name: MetricRequestUA, Kind: Value, Unit: UnitCount, Description: "Requests per user agent"},
	{Name: MetricRequestUAFamily, Kind: Value, Unit: UnitCount, Description: "Requests per user agent family"},
	{Name: MetricRequestMethod, Kind: Value, Unit: UnitCount, Description: "Requests per HTTP method"},
	{Name: MetricRequestUsers, Kind: Value, Unit: UnitCount, Description: "Requests per distinct user"},
	{Name: MetricResponseTime, Kind: Rate, Unit: UnitSeconds, Description: "Mean response time"},
	{Name: MetricResponseSize, Kind: Rate, Unit: UnitBytes, Description: "Mean response size"},
	{Name: MetricResponseStatus, Kind: Value, Unit: UnitCount, Description: "Responses per status code"},
	{Name: MetricErrorCount, Kind: Count, Unit: UnitCount, Description: "Number of failed requests"},
	{Name: MetricErrorTypes, Kind: Count, Unit: UnitCount, Description: "Failed requests per error type"},
}

var hostMetrics = []Metric{
	{Name: MetricUptime, Kind: ValueNumeric, Unit: UnitSeconds, Description: "Host uptime"},
	{Name: MetricLoad1m, Kind: ValueNumeric, Unit: UnitCount, Description: "Load average, 1 minute"},
	{Name: MetricLoad5m, Kind: ValueNumeric, Unit: UnitCount, Description: "Load average, 5 minutes"},
	{Name: MetricLoad15m, Kind: ValueNumeric, Unit: UnitCount, Description: "Load average, 15 minutes"},
	{Name: MetricMemFree, Kind: ValueNumeric, Unit: UnitBytes, Description: "Free memory"},
	{Name: MetricMemUsage, Kind: ValueNumeric, Unit: UnitBytes, Description: "Used memory"},
	{Name: MetricMemUsagePct, Kind: ValueNumeric, Unit: UnitPercent, Description: "Used memory share"},
	{Name: MetricMemAll, Kind: ValueNumeric, Unit: UnitBytes, Description: "Total memory"},
	{Name: MetricStorageTotal, Kind: ValueNumeric, Unit: UnitBytes, Description: "Mount capacity"},
	{Name: MetricStorageUsed, Kind: ValueNumeric, Unit: UnitBytes, Description: "Mount used space"},
	{Name: MetricStorageFree, Kind: ValueNumeric, Unit: UnitBytes, Description: "Mount free space"},
	{Name: MetricNetworkIn, Kind: ValueNumeric, Unit: UnitBytes, Description: "Interface receive counter"},
	{Name: MetricNetworkOut, Kind: ValueNumeric, Unit: UnitBytes, Description: "Interface transmit counter"},
	{Name: MetricNetworkInRate, Kind: Rate, Unit: UnitBytesPerSecond, Description: "Interface receive rate"},
	{Name: MetricNetworkOutRate, Kind: Rate, Unit: UnitBytesPerSecond, Description: "Interface transmit rate"},
	{Name: MetricCPUUsage, Kind: ValueNumeric, Unit: UnitSeconds, Description: "Cumulative CPU time"},
	{Name: MetricCPUUsageRate, Kind: Rate, Unit: UnitRate, Description: "CPU time growth rate"},
	{Name: MetricCPUUsagePct, Kind: ValueNumeric, Unit: UnitPercent, Description: "CPU usage share"},
}

// Default returns the registry populated with the standard metric
// vocabulary for all service kinds.
func Default() *Registry {
	r := NewRegistry()
	for _, m := range requestMetrics {
		r.Register(ServiceWeb, m)
		r.Register(ServiceMapServer, m)
	}
	for _, m := range hostMetrics {
		r.Register(ServiceHost, m)
	}
	return r
}
