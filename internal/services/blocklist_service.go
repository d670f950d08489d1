package services

import (
	"errors"

	"github.com/cloud-atlas/api/internal/platform/ratelimit"
)

type blocklistService struct {
	guard *ratelimit.IPGuard
}

// NewBlocklistService exposes manual block operations over the shared guard.
func NewBlocklistService(guard *ratelimit.IPGuard) (BlocklistService, error) {
	if guard == nil {
		return nil, errors.New("blocklist service: ip guard is required")
	}
	return &blocklistService{guard: guard}, nil
}

func (s *blocklistService) BlockIP(ip string) {
	s.guard.Block(ip)
}

func (s *blocklistService) UnblockIP(ip string) {
	s.guard.Unblock(ip)
}
