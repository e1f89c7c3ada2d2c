// Package icon holds the embedded tray icon for tunetray.
package icon

// Logo is a 16x16 PNG rendered into the tray.
var Logo = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff, 0x61, 0x00, 0x00, 0x00,
	0x39, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x60, 0x18, 0xf4, 0x40,
	0xa3, 0xe2, 0xce, 0x7f, 0xb2, 0x34, 0xe1, 0xc2, 0x14, 0x69, 0x26, 0x68,
	0x08, 0x31, 0x9a, 0xf1, 0x1a, 0x32, 0xb0, 0x06, 0x90, 0xa2, 0x99, 0x2a,
	0x86, 0x0c, 0xc2, 0x30, 0x20, 0xc5, 0x10, 0x9c, 0x9a, 0x89, 0x31, 0x84,
	0xa0, 0x66, 0x6c, 0x86, 0x91, 0xac, 0x89, 0x14, 0x00, 0x00, 0x10, 0xfd,
	0x18, 0x5b, 0x4f, 0xb2, 0xd2, 0xab, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
	0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
