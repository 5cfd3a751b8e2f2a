package tool

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"github.com/sirupsen/logrus"
	"math/big"
	"net"
	"os"
	"time"
)

// EnsureTlsCertificate generates a self-signed key pair unless both files already exist
func EnsureTlsCertificate(organization, commonName, keyFilename, certFilename string, hostnames []string) error {
	existCert, err := IsFileExists(certFilename)
	if err != nil {
		return fmt.Errorf("unable to access %s: %w", certFilename, err)
	}
	existKey, err := IsFileExists(keyFilename)
	if err != nil {
		return fmt.Errorf("unable to access %s: %w", keyFilename, err)
	}
	if existCert && existKey {
		return nil
	}

	logrus.Info("Missing cert and key files, trying to generate them...")
	if err := GenerateTlsCertificate(organization, commonName, keyFilename, certFilename, hostnames); err != nil {
		return err
	}
	logrus.Info("Self-signed cert and key files generated")
	return nil
}

func GenerateTlsCertificate(
	organization string,
	serverCommonName string,
	serverKeyFilename, serverCertFilename string,
	hostnames []string) error {

	notBefore := time.Now()
	notAfter := notBefore.AddDate(10, 0, 0)

	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	if err = keyToFile(serverKeyFilename, serverKey); err != nil {
		return err
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}
	serverTemplate := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   serverCommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, h := range hostnames {
		if ip := net.ParseIP(h); ip != nil {
			serverTemplate.IPAddresses = append(serverTemplate.IPAddresses, ip)
		} else {
			serverTemplate.DNSNames = append(serverTemplate.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &serverTemplate, &serverTemplate, &serverKey.PublicKey, serverKey)
	if err != nil {
		return err
	}
	return pemToFile(serverCertFilename, 0o644, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
}

func keyToFile(filename string, key *ecdsa.PrivateKey) error {
	b, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	return pemToFile(filename, 0o600, &pem.Block{Type: "EC PRIVATE KEY", Bytes: b})
}

func pemToFile(filename string, perm os.FileMode, block *pem.Block) error {
	return WriteFileAtomic(filename, pem.EncodeToMemory(block), perm)
}
