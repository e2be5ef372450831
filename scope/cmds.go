// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scope

import (
	"fmt"
	"strings"

	"github.com/go-lpc/oscope/wfm"
)

// Tektronix DPO programmer commands.
const (
	cmdIDN        = "*IDN?\n"
	cmdHorizontal = "HORizontal:ACQLENGTH?;:WFMOutpre:XINcr?;:WFMOutpre:XZEro?\n"
	cmdFastFrame  = "HORizontal:FASTframe:STATE?;:HORizontal:FASTframe:COUNt?\n"
	cmdCurveNext  = "CURVENext?\n"
)

// cmdSelect enables the active channels in fastest encoding.
func cmdSelect(mask uint32) string {
	o := new(strings.Builder)
	o.WriteString("DATa:ENCdg fastest")
	for i := 0; i < wfm.NumChannels; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		fmt.Fprintf(o, ";:select:ch%d 1", i+1)
	}
	o.WriteString("\n")
	return o.String()
}

// cmdScale queries the vertical scaling of the hardware channel ch.
func cmdScale(ch int) string {
	return fmt.Sprintf(
		"data:source ch%d;:data:encdg FAStest;:WFMOutpre:BYT_Nr 1;"+
			":WFMOutpre:YMUlt?;:WFMOutpre:YOFf?;:WFMOutpre:YZEro?\n",
		ch+1,
	)
}

// cmdSource selects the active channels for the curve transfer.
func cmdSource(mask uint32) string {
	chans := make([]string, 0, wfm.NumChannels)
	for i := 0; i < wfm.NumChannels; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		chans = append(chans, fmt.Sprintf("ch%d", i+1))
	}
	return "data:source " + strings.Join(chans, ",") + "\n"
}

// cmdRange sets the transfer range to the whole record.
func cmdRange(nsamples int) string {
	return fmt.Sprintf("data:start 1;:data:stop %d\n", nsamples)
}
