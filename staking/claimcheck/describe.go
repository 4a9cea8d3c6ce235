// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package claimcheck

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

const amountDecimals = 18

var amountUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(amountDecimals), nil)

// FormatAmount renders a wei-denominated amount as a decimal KLAY string:
// thousands-separated integer part, fractional part trimmed of trailing
// zeros. "1", "0.5", "1,234.000000000000000123".
func FormatAmount(amount *big.Int) string {
	quo, rem := new(big.Int).QuoRem(amount, amountUnit, new(big.Int))

	var b strings.Builder
	whole := quo.String()
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	if rem.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", amountDecimals, rem.String())
		frac = strings.TrimRight(frac, "0")
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Describe renders a claim check's user-facing description at the given
// time.
func (c *Lifecycle) Describe(tokenID uint64, now uint64) (string, error) {
	tk, err := c.Ticket(tokenID)
	if err != nil {
		return "", err
	}
	status := c.status(tk, now)

	var b strings.Builder
	fmt.Fprintf(&b, "Claim check for %s KLAY. ", FormatAmount(tk.Amount))
	fmt.Fprintf(&b, "Claimable from %s until %s. ",
		formatTime(tk.WithdrawableFrom),
		formatTime(tk.WithdrawableFrom+c.expiryWindow))

	switch status {
	case StatusPending:
		b.WriteString("Not claimable yet.")
	case StatusValid:
		b.WriteString("Claimable now.")
	case StatusExpired:
		b.WriteString("Expired; claiming now re-stakes the KLAY to the current owner.")
	case StatusClaimed:
		b.WriteString("Already claimed.")
	case StatusCancelled:
		b.WriteString("Cancelled by the requester.")
	}
	return b.String(), nil
}

func formatTime(unix uint64) string {
	return time.Unix(int64(unix), 0).UTC().Format("2006-01-02 15:04:05 UTC")
}
