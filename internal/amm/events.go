package amm

import (
	"fmt"

	"github.com/0xivanov/dex-core/internal/dex"
	"github.com/0xivanov/dex-core/internal/ledger"
)

func (p *Pool) emit(call *ledger.Call, name string, args ...interface{}) error {
	poolABI, err := dex.PoolABI()
	if err != nil {
		return fmt.Errorf("parse pool abi: %w", err)
	}
	topics, data, err := dex.EncodeEvent(poolABI, name, args...)
	if err != nil {
		return err
	}
	call.Log(p.address, topics, data)
	return nil
}
