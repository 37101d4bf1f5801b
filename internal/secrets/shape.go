package secrets

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// ShapeDetector reports whether a value is already a usable target.
type ShapeDetector func(string) bool

var (
	// go-sql-driver DSN: [user[:pass]@][proto[(addr)]]/dbname[?params]
	mysqlDSN = regexp.MustCompile(`^[^@/\s]*(:[^@\s]*)?@([a-z0-9]+(\([^)\s]*\))?)?/[^\s]*$`)
	pgKV     = regexp.MustCompile(`(^|\s)host=\S+`)
)

func LooksLikeURL(v string) bool {
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func hasScheme(v string, schemes ...string) bool {
	u, err := url.Parse(v)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}

func LooksLikePostgres(v string) bool {
	return hasScheme(v, "postgres", "postgresql") || pgKV.MatchString(v)
}

func LooksLikeMySQL(v string) bool {
	return hasScheme(v, "mysql") || mysqlDSN.MatchString(v)
}

func LooksLikeRedis(v string) bool { return hasScheme(v, "redis", "rediss") }

func LooksLikeAMQP(v string) bool { return hasScheme(v, "amqp", "amqps") }

func LooksLikeNATS(v string) bool { return hasScheme(v, "nats", "tls") }

func DetectorFor(t domain.ServiceType) ShapeDetector {
	switch t {
	case domain.TypePostgres:
		return LooksLikePostgres
	case domain.TypeMySQL:
		return LooksLikeMySQL
	case domain.TypeRedis:
		return LooksLikeRedis
	case domain.TypeRabbitMQ:
		return LooksLikeAMQP
	case domain.TypeNATS:
		return LooksLikeNATS
	default:
		return LooksLikeURL
	}
}
