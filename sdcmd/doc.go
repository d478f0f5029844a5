// Package sdcmd defines the SD/MMC/SDIO command line frames as seen on the
// CMD line: the command table, bit level helpers, frame encoders and the
// interpreters that render commands and responses as text.
//
// Command frame layout (48 bits, MSB first):
//
//	start(1)=0 transmit(1)=1 index(6) argument(32) crc7(7) end(1)=1
//
// Responses share the layout with transmit=0 except R2 which is 136 bits long.
package sdcmd
