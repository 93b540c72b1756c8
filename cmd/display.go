package main

import (
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"

	"github.com/NeillJohnston/macropinna/internal/netaddr"
)

// DisplayURL prints one connection URL.
func DisplayURL(w io.Writer, u netaddr.RemoteURL) {
	label := u.Name
	if u.Tailscale {
		label += " (tailscale)"
	}
	fmt.Fprintf(w, "  %-20s %s\n", label, u.IP)
}

// DisplayURLQRCode shows a connection URL as a QR code with the plain URL
// underneath, so a phone camera can open the web client directly.
func DisplayURLQRCode(w io.Writer, u netaddr.RemoteURL) {
	// Medium error correction keeps the code small enough for a terminal.
	qr, err := qrcode.New(u.IP, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		DisplayURL(w, u)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintf(w, "  SCAN TO CONNECT (%s)\n", u.Name)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprint(w, qr.ToSmallString(false))
	fmt.Fprintf(w, "  %s\n", u.IP)
	fmt.Fprintln(w, "  Accept the certificate warning, then enter")
	fmt.Fprintln(w, "  a name and confirm the code on this screen.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}
