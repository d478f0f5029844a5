/*
Package sdmmcspi decodes SD/MMC/SDIO command line traffic captured with an
SPI analyzer: the card clock is wired to SCK and the CMD line to MOSI so
every captured byte carries 8 CMD bits with no byte alignment to frames.

The Decoder consumes bytes one at a time and emits commands, responses and,
for CMD53 transfers whose data travels on the monitored line, data blocks:

	dec := sdmmcspi.NewDecoder(sdmmcspi.DefaultConfig())
	for _, b := range captured {
		frame, ok := dec.AddByte(b.Value, b.Start, b.End)
		if ok {
			fmt.Println(frame.Start, frame.Info)
		}
	}

CRCs are extracted but not verified.
*/
package sdmmcspi
