package sink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

const (
	defaultTCPPort   = 1883
	defaultTLSPort   = 8883
	defaultKeepAlive = 60 * time.Second
	maxKeepAlive     = 65535 * time.Second
	defaultSASTTL    = time.Hour
	iotHubAPIVersion = "2021-04-12"
)

// ConnectionSettings are the MQTT connection parameters of one sensor.
//
// Connection string example:
// HostName=AircraftMonitoring.azure-devices.net;DeviceId=RSL10-Sensor1;SharedAccessKey=...
// HostName=localhost;TcpPort=1883;DeviceId=Sensor_1;Username=u;Password=p.
type ConnectionSettings struct {
	HostName        string
	Port            int
	UseTLS          bool
	DeviceID        string
	ClientID        string
	Username        string
	Password        string
	SharedAccessKey string
	KeepAlive       time.Duration
	SASTTL          time.Duration
}

// ParseConnectionString parses a ';'-separated key=value connection string.
// Keys are case-insensitive.
func ParseConnectionString(connStr string) (*ConnectionSettings, error) {
	settings := parseToSettingsMap(connStr)
	cs := &ConnectionSettings{KeepAlive: defaultKeepAlive, SASTTL: defaultSASTTL}

	cs.HostName = settings["hostname"]
	if cs.HostName == "" {
		return nil, errors.New("HostName must not be empty")
	}
	cs.DeviceID = settings["deviceid"]
	cs.ClientID = settings["clientid"]
	cs.Username = settings["username"]
	cs.Password = settings["password"]
	cs.SharedAccessKey = settings["sharedaccesskey"]

	// A shared access key implies IoT Hub, which only accepts TLS.
	cs.UseTLS = cs.SharedAccessKey != ""
	if v, ok := settings["usetls"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("UseTls: %w", err)
		}
		cs.UseTLS = b
	}

	cs.Port = defaultTCPPort
	if cs.UseTLS {
		cs.Port = defaultTLSPort
	}
	if v, ok := settings["tcpport"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("TcpPort %q is not a valid port", v)
		}
		cs.Port = p
	}

	if v, ok := settings["keepalive"]; ok {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("KeepAlive: %w", err)
		}
		// MQTT carries the keep alive as a 16-bit number of seconds.
		if d < 0 || d > maxKeepAlive {
			return nil, fmt.Errorf("KeepAlive %s must be between 0s and %s", d, maxKeepAlive)
		}
		cs.KeepAlive = d
	}
	if v, ok := settings["sasttl"]; ok {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("SasTtl: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("SasTtl %s must be positive", d)
		}
		cs.SASTTL = d
	}

	if cs.SharedAccessKey != "" && cs.DeviceID == "" {
		return nil, errors.New("DeviceId is required with SharedAccessKey")
	}
	return cs, nil
}

func parseToSettingsMap(connStr string) map[string]string {
	settingsMap := make(map[string]string)
	connStr = strings.TrimSuffix(connStr, ";")
	for _, param := range strings.Split(connStr, ";") {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) == 2 {
			k := strings.ToLower(strings.TrimSpace(kv[0]))
			settingsMap[k] = strings.TrimSpace(kv[1])
		}
	}
	return settingsMap
}

// parseDuration accepts ISO 8601 ("PT30S") and Go ("30s") durations.
func parseDuration(v string) (time.Duration, error) {
	if strings.HasPrefix(strings.ToUpper(v), "P") {
		d, err := duration.Parse(v)
		if err != nil {
			return 0, err
		}
		return d.ToTimeDuration(), nil
	}
	return time.ParseDuration(v)
}

// Address returns host:port.
func (cs *ConnectionSettings) Address() string {
	return net.JoinHostPort(cs.HostName, strconv.Itoa(cs.Port))
}

// Credentials returns the MQTT username and password. With a shared access
// key they are the IoT Hub device username and a SAS token valid until
// now+SASTTL.
func (cs *ConnectionSettings) Credentials(now time.Time) (string, string, error) {
	if cs.SharedAccessKey == "" {
		return cs.Username, cs.Password, nil
	}
	username := fmt.Sprintf("%s/%s/?api-version=%s", cs.HostName, cs.DeviceID, iotHubAPIVersion)
	token, err := SASToken(cs.HostName+"/devices/"+cs.DeviceID, cs.SharedAccessKey, now.Add(cs.SASTTL))
	if err != nil {
		return "", "", err
	}
	return username, token, nil
}

// SASToken builds a shared access signature for resourceURI signed with the
// base64 encoded key.
func SASToken(resourceURI, key string, expiry time.Time) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("shared access key is not base64: %w", err)
	}
	sr := url.QueryEscape(resourceURI)
	se := strconv.FormatInt(expiry.Unix(), 10)
	mac := hmac.New(sha256.New, decoded)
	mac.Write([]byte(sr + "\n" + se))
	sig := url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s", sr, sig, se), nil
}
