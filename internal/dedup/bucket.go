package dedup

import (
	"strconv"
	"time"

	"github.com/CosmoTheDev/ctrlnotify/models"
)

// TimeBucketedPolicy allows a given message at most once per fixed time
// bucket (aligned to the Unix epoch). Unlike ContentBasedPolicy the boundary
// does not slide: a repeat one second after a bucket edge is sent again.
type TimeBucketedPolicy struct {
	bucket time.Duration
}

// NewTimeBucketed returns a policy with the given bucket size.
// A non-positive size falls back to DefaultBucket.
func NewTimeBucketed(bucket time.Duration) *TimeBucketedPolicy {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &TimeBucketedPolicy{bucket: bucket}
}

func (p *TimeBucketedPolicy) Name() string { return TimeBucketed }

func (p *TimeBucketedPolicy) Key(msg models.NotificationMessage) string {
	return ContentKey(msg) + ":" + strconv.FormatInt(p.bucketStart(msg.CreatedAt), 10)
}

// bucketStart returns the Unix second at which t's bucket begins.
func (p *TimeBucketedPolicy) bucketStart(t time.Time) int64 {
	n, b := t.UnixNano(), int64(p.bucket)
	rem := n % b
	if rem < 0 {
		rem += b
	}
	return (n - rem) / int64(time.Second)
}

func (p *TimeBucketedPolicy) ShouldSend(msg models.NotificationMessage, history []models.NotificationMessage) bool {
	key := p.Key(msg)
	for _, sent := range history {
		if p.Key(sent) == key {
			return false
		}
	}
	return true
}
