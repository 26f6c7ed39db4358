// Package providers imports every DNS provider so they self-register.
package providers

import (
	_ "github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns/huaweicloud"
	_ "github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/dns/memory"
)
